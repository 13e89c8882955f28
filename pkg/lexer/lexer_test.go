package lexer

import "testing"

func typesOf(toks []Token) []TokenType {
	out := make([]TokenType, len(toks))
	for i, t := range toks {
		out[i] = t.Type
	}
	return out
}

func assertTypes(t *testing.T, input string, want []TokenType) {
	t.Helper()
	got := typesOf(New(input).Tokenize())
	if len(got) != len(want) {
		t.Fatalf("%q: got %d tokens %v, want %d %v", input, len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%q: token %d: got %v, want %v", input, i, got[i], want[i])
		}
	}
}

func TestPunctuation(t *testing.T) {
	assertTypes(t, "(){}[],:;.", []TokenType{
		TokenLParen, TokenRParen, TokenLBrace, TokenRBrace,
		TokenLBracket, TokenRBracket, TokenComma, TokenColon,
		TokenSemicolon, TokenDot, TokenEOF,
	})
}

func TestArrows(t *testing.T) {
	assertTypes(t, "-> =>", []TokenType{TokenArrow, TokenFatArrow, TokenEOF})
}

func TestOperators(t *testing.T) {
	assertTypes(t, "+ - * / % ! == != < <= > >= && || ? = ", []TokenType{
		TokenPlus, TokenMinus, TokenStar, TokenSlash, TokenPercent, TokenBang,
		TokenEq, TokenNotEq, TokenLt, TokenLtEq, TokenGt, TokenGtEq,
		TokenAndAnd, TokenOrOr, TokenQuestion, TokenAssign, TokenEOF,
	})
}

func TestCompoundAssignAndIncDec(t *testing.T) {
	assertTypes(t, "+= -= *= /= %= ++ --", []TokenType{
		TokenPlusEq, TokenMinusEq, TokenStarEq, TokenSlashEq, TokenPercentEq,
		TokenPlusPlus, TokenMinusMinus, TokenEOF,
	})
}

func TestKeywords(t *testing.T) {
	assertTypes(t,
		"let var fn own borrow shared if else while for in match try return break continue true false null Some None Ok Err _",
		[]TokenType{
			TokenLet, TokenVar, TokenFn, TokenOwn, TokenBorrow, TokenShared,
			TokenIf, TokenElse, TokenWhile, TokenFor, TokenIn, TokenMatch,
			TokenTry, TokenReturn, TokenBreak, TokenContinue, TokenTrue,
			TokenFalse, TokenNull, TokenSome, TokenNone, TokenOk, TokenErr,
			TokenUnderscore, TokenEOF,
		})
}

func TestIdentifier(t *testing.T) {
	toks := New("myVar1").Tokenize()
	if len(toks) != 2 || toks[0].Type != TokenIdent || toks[0].Lit != "myVar1" {
		t.Fatalf("got %+v", toks)
	}
}

func TestNumberLiteral(t *testing.T) {
	for _, input := range []string{"42", "3.14", "0"} {
		toks := New(input).Tokenize()
		if len(toks) != 2 || toks[0].Type != TokenNumber || toks[0].Lit != input {
			t.Errorf("%q: got %+v", input, toks)
		}
	}
}

func TestStringLiteral(t *testing.T) {
	toks := New(`"hello world"`).Tokenize()
	if len(toks) != 2 || toks[0].Type != TokenString || toks[0].Lit != "hello world" {
		t.Fatalf("got %+v", toks)
	}
}

func TestIllegalCharacter(t *testing.T) {
	toks := New("@").Tokenize()
	if len(toks) != 2 || toks[0].Type != TokenIllegal {
		t.Fatalf("got %+v, want a single TokenIllegal before EOF", toks)
	}
}

func TestLineAndColumnTracking(t *testing.T) {
	toks := New("let\nx = 1;").Tokenize()
	if toks[0].Line != 1 {
		t.Errorf("'let' line = %d, want 1", toks[0].Line)
	}
	// 'x' on the second line
	var xTok Token
	for _, tok := range toks {
		if tok.Type == TokenIdent && tok.Lit == "x" {
			xTok = tok
		}
	}
	if xTok.Line != 2 {
		t.Errorf("'x' line = %d, want 2", xTok.Line)
	}
}

func TestFullDeclaration(t *testing.T) {
	assertTypes(t, "let x = 1 + 2;", []TokenType{
		TokenLet, TokenIdent, TokenAssign, TokenNumber, TokenPlus, TokenNumber,
		TokenSemicolon, TokenEOF,
	})
}

func TestUnionAndIntersectionTypeTokens(t *testing.T) {
	assertTypes(t, "A | B & C", []TokenType{
		TokenIdent, TokenPipe, TokenIdent, TokenAmp, TokenIdent, TokenEOF,
	})
}
