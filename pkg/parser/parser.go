// Package parser implements the Atlas language parser.
//
// It is a precedence-climbing recursive descent parser converting the
// lexer's token stream into the pkg/ast tree. Like the lexer, it is
// intentionally permissive about semantic questions (types are parsed, never
// checked) — only grammar violations are reported.
package parser

import (
	"fmt"

	"github.com/atl-lang/atlas-sub003/pkg/ast"
	"github.com/atl-lang/atlas-sub003/pkg/diag"
	"github.com/atl-lang/atlas-sub003/pkg/lexer"
	"github.com/atl-lang/atlas-sub003/pkg/value"
)

type precedence int

const (
	lowest precedence = iota
	orPrec
	andPrec
	equality
	comparison
	sum
	product
	unary
	call
)

var precedences = map[lexer.TokenType]precedence{
	lexer.TokenOrOr:     orPrec,
	lexer.TokenAndAnd:   andPrec,
	lexer.TokenEq:       equality,
	lexer.TokenNotEq:    equality,
	lexer.TokenLt:       comparison,
	lexer.TokenLtEq:     comparison,
	lexer.TokenGt:       comparison,
	lexer.TokenGtEq:     comparison,
	lexer.TokenPlus:     sum,
	lexer.TokenMinus:    sum,
	lexer.TokenStar:     product,
	lexer.TokenSlash:    product,
	lexer.TokenPercent:  product,
	lexer.TokenLParen:   call,
	lexer.TokenLBracket: call,
	lexer.TokenDot:      call,
	lexer.TokenQuestion: call,
}

// Parser accumulates all syntax errors it finds rather than stopping at the
// first; Parse returns the partial program plus a combined error.
type Parser struct {
	l    *lexer.Lexer
	file string

	curTok  lexer.Token
	peekTok lexer.Token

	errors []*diag.Diagnostic
}

func New(file, input string) *Parser {
	p := &Parser{l: lexer.New(input), file: file}
	p.nextToken()
	p.nextToken()
	return p
}

func (p *Parser) nextToken() {
	p.curTok = p.peekTok
	p.peekTok = p.l.NextToken()
}

func (p *Parser) span(t lexer.Token) diag.Span {
	return diag.Span{File: p.file, Line: t.Line, Column: t.Column, Length: len(t.Lit)}
}

func (p *Parser) addErrorf(t lexer.Token, format string, args ...any) {
	p.errors = append(p.errors, diag.New(diag.SyntaxError, fmt.Sprintf(format, args...), p.span(t)))
}

func (p *Parser) Errors() []*diag.Diagnostic { return p.errors }

func (p *Parser) curIs(t lexer.TokenType) bool  { return p.curTok.Type == t }
func (p *Parser) peekIs(t lexer.TokenType) bool { return p.peekTok.Type == t }

func (p *Parser) expect(t lexer.TokenType, what string) bool {
	if p.peekIs(t) {
		p.nextToken()
		return true
	}
	p.addErrorf(p.peekTok, "expected %s, got %q", what, p.peekTok.Lit)
	return false
}

// Parse parses the whole input, returning the program and a combined error
// (nil if there were no syntax errors).
func (p *Parser) Parse() (*ast.Program, error) {
	prog := &ast.Program{}
	for !p.curIs(lexer.TokenEOF) {
		stmt := p.parseStatement()
		if stmt != nil {
			prog.Statements = append(prog.Statements, stmt)
		}
		p.nextToken()
	}
	if len(p.errors) > 0 {
		return prog, fmt.Errorf("%d syntax error(s); first: %s", len(p.errors), p.errors[0].Error())
	}
	return prog, nil
}

// ---- statements ----

func (p *Parser) parseStatement() ast.Statement {
	switch p.curTok.Type {
	case lexer.TokenLet, lexer.TokenVar:
		return p.parseVarDecl()
	case lexer.TokenFn:
		return p.parseFnDecl()
	case lexer.TokenIf:
		return p.parseIfStmt()
	case lexer.TokenWhile:
		return p.parseWhileStmt()
	case lexer.TokenFor:
		return p.parseForStmt()
	case lexer.TokenReturn:
		return p.parseReturnStmt()
	case lexer.TokenBreak:
		s := &ast.BreakStmt{Pos: p.span(p.curTok)}
		return s
	case lexer.TokenContinue:
		s := &ast.ContinueStmt{Pos: p.span(p.curTok)}
		return s
	default:
		return p.parseSimpleStatement()
	}
}

func (p *Parser) parseVarDecl() ast.Statement {
	mutable := p.curIs(lexer.TokenVar)
	startTok := p.curTok
	if !p.expect(lexer.TokenIdent, "identifier") {
		return nil
	}
	name := p.curTok.Lit
	var typ ast.TypeRef
	if p.peekIs(lexer.TokenColon) {
		p.nextToken()
		p.nextToken()
		typ = p.parseTypeRef()
	}
	if !p.expect(lexer.TokenAssign, "'='") {
		return nil
	}
	p.nextToken()
	init := p.parseExpression(lowest)
	return &ast.VarDecl{Name: name, Mutable: mutable, Type: typ, Init: init, Pos: p.span(startTok)}
}

func (p *Parser) parseFnDecl() ast.Statement {
	startTok := p.curTok
	if !p.expect(lexer.TokenIdent, "function name") {
		return nil
	}
	name := p.curTok.Lit
	if !p.expect(lexer.TokenLParen, "'('") {
		return nil
	}
	params := p.parseParamList()
	retOwned := value.Own
	var retType ast.TypeRef
	if p.peekIs(lexer.TokenArrow) {
		p.nextToken()
		p.nextToken()
		retOwned = p.parseOptionalOwnership()
		retType = p.parseTypeRef()
	}
	if !p.expect(lexer.TokenLBrace, "'{'") {
		return nil
	}
	body := p.parseBlockStatements()
	return &ast.FnDecl{Name: name, Params: params, ReturnOwned: retOwned, ReturnType: retType, Body: body, Pos: p.span(startTok)}
}

// parseParamList parses `(name: type, own name2: type2, ...)`, leaving
// curTok on the closing ')'.
func (p *Parser) parseParamList() []ast.Param {
	var params []ast.Param
	if p.peekIs(lexer.TokenRParen) {
		p.nextToken()
		return params
	}
	p.nextToken()
	for {
		own := p.parseOptionalOwnership()
		nameTok := p.curTok
		name := p.curTok.Lit
		var typ ast.TypeRef
		if p.peekIs(lexer.TokenColon) {
			p.nextToken()
			p.nextToken()
			typ = p.parseTypeRef()
		}
		params = append(params, ast.Param{Name: name, Ownership: own, Type: typ, ParamSpan: p.span(nameTok)})
		if p.peekIs(lexer.TokenComma) {
			p.nextToken()
			p.nextToken()
			continue
		}
		break
	}
	p.expect(lexer.TokenRParen, "')'")
	return params
}

// parseOptionalOwnership consumes a leading own/borrow/shared keyword if
// present (curTok ends on the parameter name either way), defaulting to Own.
func (p *Parser) parseOptionalOwnership() value.OwnershipMode {
	switch p.curTok.Type {
	case lexer.TokenOwn:
		p.nextToken()
		return value.Own
	case lexer.TokenBorrow:
		p.nextToken()
		return value.Borrow
	case lexer.TokenShared:
		p.nextToken()
		return value.Shared
	default:
		return value.Own
	}
}

func (p *Parser) parseBlockStatements() []ast.Statement {
	var stmts []ast.Statement
	p.nextToken()
	for !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
		s := p.parseStatement()
		if s != nil {
			stmts = append(stmts, s)
		}
		p.nextToken()
	}
	return stmts
}

func (p *Parser) parseIfStmt() ast.Statement {
	startTok := p.curTok
	p.nextToken()
	cond := p.parseExpression(lowest)
	if !p.expect(lexer.TokenLBrace, "'{'") {
		return nil
	}
	then := p.parseBlockStatements()
	var elseBody []ast.Statement
	if p.peekIs(lexer.TokenElse) {
		p.nextToken()
		if p.peekIs(lexer.TokenIf) {
			p.nextToken()
			elseBody = []ast.Statement{p.parseIfStmt()}
		} else if p.expect(lexer.TokenLBrace, "'{'") {
			elseBody = p.parseBlockStatements()
		}
	}
	return &ast.IfStmt{Cond: cond, Then: then, Else: elseBody, Pos: p.span(startTok)}
}

func (p *Parser) parseWhileStmt() ast.Statement {
	startTok := p.curTok
	p.nextToken()
	cond := p.parseExpression(lowest)
	if !p.expect(lexer.TokenLBrace, "'{'") {
		return nil
	}
	body := p.parseBlockStatements()
	return &ast.WhileStmt{Cond: cond, Body: body, Pos: p.span(startTok)}
}

// parseForStmt disambiguates `for x in iter { }` from the three-clause
// `for init; cond; post { }` by looking for TokenIn after the first
// identifier.
func (p *Parser) parseForStmt() ast.Statement {
	startTok := p.curTok
	if p.peekIs(lexer.TokenIdent) {
		save := p.peekTok
		if p.lookaheadIsForIn() {
			p.nextToken()
			binding := p.curTok.Lit
			p.nextToken() // consume 'in'
			p.nextToken()
			iter := p.parseExpression(lowest)
			if !p.expect(lexer.TokenLBrace, "'{'") {
				return nil
			}
			body := p.parseBlockStatements()
			return &ast.ForInStmt{Binding: binding, Iter: iter, Body: body, Pos: p.span(startTok)}
		}
		_ = save
	}
	p.nextToken()
	var initStmt ast.Statement
	if !p.curIs(lexer.TokenSemicolon) {
		initStmt = p.parseSimpleStatement()
	}
	p.expect(lexer.TokenSemicolon, "';'")
	p.nextToken()
	var cond ast.Expression
	if !p.curIs(lexer.TokenSemicolon) {
		cond = p.parseExpression(lowest)
	}
	p.expect(lexer.TokenSemicolon, "';'")
	p.nextToken()
	var postStmt ast.Statement
	if !p.curIs(lexer.TokenLBrace) {
		postStmt = p.parseSimpleStatement()
	}
	if !p.expect(lexer.TokenLBrace, "'{'") {
		return nil
	}
	body := p.parseBlockStatements()
	return &ast.ForStmt{Init: initStmt, Cond: cond, Post: postStmt, Body: body, Pos: p.span(startTok)}
}

// lookaheadIsForIn peeks past `for <ident>` to see if `in` follows, without
// consuming tokens: it scans the next token from a copy of the lexer, which
// sits just after peekTok.
func (p *Parser) lookaheadIsForIn() bool {
	// Single-token lookahead beyond peekTok is done by scanning a throwaway
	// lexer copy positioned identically to the live one.
	snapshot := *p.l
	tmp := lexer.Token{}
	tmp = (&snapshot).NextToken()
	return tmp.Type == lexer.TokenIn
}

func (p *Parser) parseReturnStmt() ast.Statement {
	startTok := p.curTok
	if p.peekIs(lexer.TokenSemicolon) || p.peekIs(lexer.TokenRBrace) {
		return &ast.ReturnStmt{Pos: p.span(startTok)}
	}
	p.nextToken()
	val := p.parseExpression(lowest)
	return &ast.ReturnStmt{Value: val, Pos: p.span(startTok)}
}

// parseSimpleStatement handles assignment (including compound), increment/
// decrement, and bare expression statements — the three statement forms
// that start with an expression.
func (p *Parser) parseSimpleStatement() ast.Statement {
	startTok := p.curTok
	expr := p.parseExpression(lowest)

	switch p.peekTok.Type {
	case lexer.TokenAssign:
		p.nextToken()
		p.nextToken()
		val := p.parseExpression(lowest)
		return &ast.Assignment{Target: expr, Op: "", Value: val, Pos: p.span(startTok)}
	case lexer.TokenPlusEq, lexer.TokenMinusEq, lexer.TokenStarEq, lexer.TokenSlashEq, lexer.TokenPercentEq:
		op := p.peekTok.Lit
		p.nextToken()
		p.nextToken()
		val := p.parseExpression(lowest)
		return &ast.Assignment{Target: expr, Op: op[:len(op)-1], Value: val, Pos: p.span(startTok)}
	case lexer.TokenPlusPlus, lexer.TokenMinusMinus:
		op := p.peekTok.Lit
		p.nextToken()
		return &ast.IncDec{Target: expr, Op: op, Pos: p.span(startTok)}
	default:
		return &ast.ExprStmt{Expr: expr, Pos: p.span(startTok)}
	}
}

// ---- expressions ----

func (p *Parser) peekPrecedence() precedence {
	if pr, ok := precedences[p.peekTok.Type]; ok {
		return pr
	}
	return lowest
}

func (p *Parser) parseExpression(minPrec precedence) ast.Expression {
	left := p.parsePrefix()
	if left == nil {
		return nil
	}
	for minPrec < p.peekPrecedence() {
		switch p.peekTok.Type {
		case lexer.TokenLParen:
			p.nextToken()
			left = p.parseCall(left)
		case lexer.TokenLBracket:
			p.nextToken()
			left = p.parseIndex(left)
		case lexer.TokenDot:
			p.nextToken()
			left = p.parseMember(left)
		case lexer.TokenQuestion:
			tok := p.peekTok
			p.nextToken()
			left = &ast.TryExpr{Inner: left, Pos: p.span(tok)}
		default:
			p.nextToken()
			left = p.parseInfix(left)
		}
	}
	return left
}

func (p *Parser) parsePrefix() ast.Expression {
	switch p.curTok.Type {
	case lexer.TokenNumber:
		return p.parseNumberLiteral()
	case lexer.TokenString:
		return &ast.StringLiteral{Val: p.curTok.Lit, Pos: p.span(p.curTok)}
	case lexer.TokenTrue:
		return &ast.BoolLiteral{Val: true, Pos: p.span(p.curTok)}
	case lexer.TokenFalse:
		return &ast.BoolLiteral{Val: false, Pos: p.span(p.curTok)}
	case lexer.TokenNull:
		return &ast.NullLiteral{Pos: p.span(p.curTok)}
	case lexer.TokenIdent:
		return &ast.Identifier{Name: p.curTok.Lit, Pos: p.span(p.curTok)}
	case lexer.TokenBang, lexer.TokenMinus:
		return p.parseUnary()
	case lexer.TokenLParen:
		return p.parseGroup()
	case lexer.TokenLBracket:
		return p.parseArrayLiteral()
	case lexer.TokenLBrace:
		return p.parseBlockExpr()
	case lexer.TokenFn:
		return p.parseAnonFn()
	case lexer.TokenMatch:
		return p.parseMatchExpr()
	case lexer.TokenTry:
		return p.parseTryExpr()
	case lexer.TokenSome:
		return p.parseCallLikeConstructor("Some")
	case lexer.TokenOk:
		return p.parseCallLikeConstructor("Ok")
	case lexer.TokenErr:
		return p.parseCallLikeConstructor("Err")
	case lexer.TokenNone:
		return &ast.Identifier{Name: "None", Pos: p.span(p.curTok)}
	default:
		p.addErrorf(p.curTok, "unexpected token %q", p.curTok.Lit)
		return nil
	}
}

// parseCallLikeConstructor treats `Some(x)`/`Ok(x)`/`Err(x)` as ordinary
// calls to an identifier with that name, which the compiler/interpreter
// special-case when resolving callees.
func (p *Parser) parseCallLikeConstructor(name string) ast.Expression {
	id := &ast.Identifier{Name: name, Pos: p.span(p.curTok)}
	if !p.peekIs(lexer.TokenLParen) {
		return id
	}
	p.nextToken()
	p.nextToken()
	return p.parseCall(id)
}

func (p *Parser) parseNumberLiteral() ast.Expression {
	tok := p.curTok
	var f float64
	_, err := fmt.Sscanf(tok.Lit, "%g", &f)
	if err != nil {
		p.addErrorf(tok, "invalid number literal %q", tok.Lit)
	}
	return &ast.NumberLiteral{Val: f, Pos: p.span(tok)}
}

func (p *Parser) parseUnary() ast.Expression {
	tok := p.curTok
	op := tok.Lit
	p.nextToken()
	operand := p.parseExpression(unary)
	return &ast.UnaryExpr{Op: op, Operand: operand, Pos: p.span(tok)}
}

func (p *Parser) parseGroup() ast.Expression {
	tok := p.curTok
	p.nextToken()
	inner := p.parseExpression(lowest)
	p.expect(lexer.TokenRParen, "')'")
	return &ast.GroupExpr{Inner: inner, Pos: p.span(tok)}
}

func (p *Parser) parseArrayLiteral() ast.Expression {
	tok := p.curTok
	var elems []ast.Expression
	if p.peekIs(lexer.TokenRBracket) {
		p.nextToken()
		return &ast.ArrayLiteral{Elements: elems, Pos: p.span(tok)}
	}
	p.nextToken()
	elems = append(elems, p.parseExpression(lowest))
	for p.peekIs(lexer.TokenComma) {
		p.nextToken()
		p.nextToken()
		elems = append(elems, p.parseExpression(lowest))
	}
	p.expect(lexer.TokenRBracket, "']'")
	return &ast.ArrayLiteral{Elements: elems, Pos: p.span(tok)}
}

func (p *Parser) parseBlockExpr() ast.Expression {
	tok := p.curTok
	stmts := p.parseBlockStatements()
	return &ast.BlockExpr{Statements: stmts, Pos: p.span(tok)}
}

func (p *Parser) parseAnonFn() ast.Expression {
	tok := p.curTok
	if !p.expect(lexer.TokenLParen, "'('") {
		return nil
	}
	params := p.parseParamList()
	if p.peekIs(lexer.TokenFatArrow) {
		p.nextToken()
		p.nextToken()
		expr := p.parseExpression(lowest)
		return &ast.AnonFn{Params: params, Body: []ast.Statement{&ast.ReturnStmt{Value: expr, Pos: p.span(tok)}}, Pos: p.span(tok)}
	}
	if !p.expect(lexer.TokenLBrace, "'{'") {
		return nil
	}
	body := p.parseBlockStatements()
	return &ast.AnonFn{Params: params, Body: body, Pos: p.span(tok)}
}

func (p *Parser) parseMatchExpr() ast.Expression {
	tok := p.curTok
	p.nextToken()
	subject := p.parseExpression(lowest)
	if !p.expect(lexer.TokenLBrace, "'{'") {
		return nil
	}
	p.nextToken()
	var arms []ast.MatchArm
	for !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
		pat := p.parsePattern()
		if !p.expect(lexer.TokenFatArrow, "'=>'") {
			break
		}
		p.nextToken()
		body := p.parseExpression(lowest)
		arms = append(arms, ast.MatchArm{Pattern: pat, Body: body})
		if p.peekIs(lexer.TokenComma) {
			p.nextToken()
		}
		p.nextToken()
	}
	return &ast.MatchExpr{Subject: subject, Arms: arms, Pos: p.span(tok)}
}

func (p *Parser) parsePattern() ast.Pattern {
	switch p.curTok.Type {
	case lexer.TokenSome:
		binding := ""
		if p.peekIs(lexer.TokenLParen) {
			p.nextToken()
			p.nextToken()
			binding = p.curTok.Lit
			p.expect(lexer.TokenRParen, "')'")
		}
		return &ast.SomePattern{Binding: binding}
	case lexer.TokenNone:
		return &ast.NonePattern{}
	case lexer.TokenOk:
		binding := ""
		if p.peekIs(lexer.TokenLParen) {
			p.nextToken()
			p.nextToken()
			binding = p.curTok.Lit
			p.expect(lexer.TokenRParen, "')'")
		}
		return &ast.OkPattern{Binding: binding}
	case lexer.TokenErr:
		binding := ""
		if p.peekIs(lexer.TokenLParen) {
			p.nextToken()
			p.nextToken()
			binding = p.curTok.Lit
			p.expect(lexer.TokenRParen, "')'")
		}
		return &ast.ErrPattern{Binding: binding}
	case lexer.TokenUnderscore:
		return &ast.WildcardPattern{}
	default:
		p.addErrorf(p.curTok, "invalid match pattern %q", p.curTok.Lit)
		return &ast.WildcardPattern{}
	}
}

func (p *Parser) parseTryExpr() ast.Expression {
	tok := p.curTok
	p.nextToken()
	inner := p.parseExpression(unary)
	return &ast.TryExpr{Inner: inner, Pos: p.span(tok)}
}

func (p *Parser) parseCall(callee ast.Expression) ast.Expression {
	tok := p.curTok
	var args []ast.Expression
	if p.peekIs(lexer.TokenRParen) {
		p.nextToken()
		return &ast.CallExpr{Callee: callee, Args: args, Pos: p.span(tok)}
	}
	p.nextToken()
	args = append(args, p.parseExpression(lowest))
	for p.peekIs(lexer.TokenComma) {
		p.nextToken()
		p.nextToken()
		args = append(args, p.parseExpression(lowest))
	}
	p.expect(lexer.TokenRParen, "')'")
	return &ast.CallExpr{Callee: callee, Args: args, Pos: p.span(tok)}
}

func (p *Parser) parseIndex(collection ast.Expression) ast.Expression {
	tok := p.curTok
	p.nextToken()
	idx := p.parseExpression(lowest)
	p.expect(lexer.TokenRBracket, "']'")
	return &ast.IndexExpr{Collection: collection, Index: idx, Pos: p.span(tok)}
}

func (p *Parser) parseMember(object ast.Expression) ast.Expression {
	tok := p.curTok
	if !p.expect(lexer.TokenIdent, "member name") {
		return object
	}
	return &ast.MemberExpr{Object: object, Name: p.curTok.Lit, Pos: p.span(tok)}
}

func (p *Parser) parseInfix(left ast.Expression) ast.Expression {
	tok := p.curTok
	op := tok.Lit
	prec := precedences[tok.Type]
	p.nextToken()
	right := p.parseExpression(prec)
	return &ast.BinaryExpr{Op: op, Left: left, Right: right, Pos: p.span(tok)}
}

// ---- type references ----

func (p *Parser) parseTypeRef() ast.TypeRef {
	base := p.parseTypeRefPrimary()
	for p.peekIs(lexer.TokenPipe) || p.peekIs(lexer.TokenAmp) {
		if p.peekIs(lexer.TokenPipe) {
			p.nextToken()
			p.nextToken()
			base = &ast.UnionType{Members: []ast.TypeRef{base, p.parseTypeRefPrimary()}}
		} else {
			p.nextToken()
			p.nextToken()
			base = &ast.IntersectionType{Members: []ast.TypeRef{base, p.parseTypeRefPrimary()}}
		}
	}
	return base
}

func (p *Parser) parseTypeRefPrimary() ast.TypeRef {
	switch p.curTok.Type {
	case lexer.TokenLBracket:
		p.nextToken()
		elem := p.parseTypeRef()
		p.expect(lexer.TokenRBracket, "']'")
		return &ast.ArrayType{Elem: elem}
	case lexer.TokenLBrace:
		p.nextToken()
		var fields []ast.StructuralField
		for !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
			name := p.curTok.Lit
			p.expect(lexer.TokenColon, "':'")
			p.nextToken()
			ft := p.parseTypeRef()
			fields = append(fields, ast.StructuralField{Name: name, Type: ft})
			if p.peekIs(lexer.TokenComma) {
				p.nextToken()
			}
			p.nextToken()
		}
		return &ast.StructuralType{Fields: fields}
	case lexer.TokenFn:
		p.expect(lexer.TokenLParen, "'('")
		var params []ast.TypeRef
		if !p.peekIs(lexer.TokenRParen) {
			p.nextToken()
			params = append(params, p.parseTypeRef())
			for p.peekIs(lexer.TokenComma) {
				p.nextToken()
				p.nextToken()
				params = append(params, p.parseTypeRef())
			}
		}
		p.expect(lexer.TokenRParen, "')'")
		var ret ast.TypeRef
		if p.peekIs(lexer.TokenArrow) {
			p.nextToken()
			p.nextToken()
			ret = p.parseTypeRef()
		}
		return &ast.FunctionType{Params: params, Return: ret}
	default:
		name := p.curTok.Lit
		var args []ast.TypeRef
		if p.peekIs(lexer.TokenLt) {
			p.nextToken()
			p.nextToken()
			args = append(args, p.parseTypeRef())
			for p.peekIs(lexer.TokenComma) {
				p.nextToken()
				p.nextToken()
				args = append(args, p.parseTypeRef())
			}
			p.expect(lexer.TokenGt, "'>'")
		}
		return &ast.NamedType{Name: name, TypeArgs: args}
	}
}
