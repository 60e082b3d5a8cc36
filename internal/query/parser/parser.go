package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/arkilian/partprune/pkg/types"
)

// ParseError represents a parsing error with location information.
type ParseError struct {
	Message  string
	Position int
	Token    Token
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s (got %s)", e.Position, e.Message, e.Token.Literal)
}

// Parser parses SQL statements into AST.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
}

// NewParser creates a new Parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{
		lexer: NewLexer(input),
	}
	// Read two tokens to initialize curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses the input and returns a Statement.
func Parse(input string) (Statement, error) {
	p := NewParser(input)
	stmt, err := p.ParseStatement()
	if err != nil {
		return nil, err
	}
	if p.curTokenIs(TokenSemicolon) {
		p.nextToken()
	}
	if !p.curTokenIs(TokenEOF) {
		return nil, p.errorf("unexpected trailing input")
	}
	return stmt, nil
}

// ParseExpression parses a standalone expression such as a WHERE clause body.
func ParseExpression(input string) (Expression, error) {
	p := NewParser(input)
	expr, err := p.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}
	if !p.curTokenIs(TokenEOF) {
		return nil, p.errorf("unexpected trailing input")
	}
	return expr, nil
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// peekTokenIs checks if the peek token is of the given type.
func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

func (p *Parser) errorf(format string, args ...interface{}) *ParseError {
	return &ParseError{
		Message:  fmt.Sprintf(format, args...),
		Position: p.curToken.Pos,
		Token:    p.curToken,
	}
}

// expect consumes the current token if it matches, otherwise returns an error.
func (p *Parser) expect(t TokenType) error {
	if !p.curTokenIs(t) {
		return p.errorf("expected %s", t.String())
	}
	p.nextToken()
	return nil
}

// ParseStatement parses a SQL statement.
func (p *Parser) ParseStatement() (Statement, error) {
	switch p.curToken.Type {
	case TokenSelect:
		return p.parseSelectStatement()
	case TokenUpdate:
		return p.parseUpdateStatement()
	case TokenDelete:
		return p.parseDeleteStatement()
	default:
		return nil, p.errorf("expected SELECT, UPDATE or DELETE")
	}
}

// parseSelectStatement parses a SELECT statement.
func (p *Parser) parseSelectStatement() (*SelectStatement, error) {
	stmt := &SelectStatement{}

	// Skip SELECT
	p.nextToken()

	if p.curTokenIs(TokenDistinct) {
		stmt.Distinct = true
		p.nextToken()
	}

	columns, err := p.parseSelectColumns()
	if err != nil {
		return nil, err
	}
	stmt.Columns = columns

	if p.curTokenIs(TokenFrom) {
		p.nextToken()
		tableRef, err := p.parseTableRef()
		if err != nil {
			return nil, err
		}
		stmt.From = tableRef
	}

	if stmt.Where, err = p.parseOptionalWhere(); err != nil {
		return nil, err
	}

	if p.curTokenIs(TokenOrderBy) {
		p.nextToken()
		if err := p.expect(TokenBy); err != nil {
			return nil, err
		}
		orderBy, err := p.parseOrderByList()
		if err != nil {
			return nil, err
		}
		stmt.OrderBy = orderBy
	}

	if p.curTokenIs(TokenLimit) {
		p.nextToken()
		if !p.curTokenIs(TokenNumber) {
			return nil, p.errorf("expected number after LIMIT")
		}
		limit, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
		if err != nil {
			return nil, p.errorf("invalid LIMIT value")
		}
		stmt.Limit = &limit
		p.nextToken()
	}

	return stmt, nil
}

// parseUpdateStatement parses UPDATE table SET col = expr [, ...] [WHERE ...].
func (p *Parser) parseUpdateStatement() (*UpdateStatement, error) {
	p.nextToken() // Skip UPDATE

	table, err := p.parseTableRef()
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokenSet); err != nil {
		return nil, err
	}

	stmt := &UpdateStatement{Table: table}
	for {
		if !p.curTokenIs(TokenIdent) {
			return nil, p.errorf("expected column name in SET")
		}
		col := p.curToken.Literal
		p.nextToken()
		if err := p.expect(TokenEq); err != nil {
			return nil, err
		}
		val, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		stmt.Set = append(stmt.Set, Assignment{Column: col, Value: val})

		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}

	if stmt.Where, err = p.parseOptionalWhere(); err != nil {
		return nil, err
	}
	return stmt, nil
}

// parseDeleteStatement parses DELETE FROM table [WHERE ...].
func (p *Parser) parseDeleteStatement() (*DeleteStatement, error) {
	p.nextToken() // Skip DELETE

	if err := p.expect(TokenFrom); err != nil {
		return nil, err
	}
	table, err := p.parseTableRef()
	if err != nil {
		return nil, err
	}

	stmt := &DeleteStatement{Table: table}
	if stmt.Where, err = p.parseOptionalWhere(); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseOptionalWhere() (Expression, error) {
	if !p.curTokenIs(TokenWhere) {
		return nil, nil
	}
	p.nextToken()
	return p.parseExpression(precLowest)
}

// parseSelectColumns parses the column list in a SELECT statement.
func (p *Parser) parseSelectColumns() ([]SelectColumn, error) {
	var columns []SelectColumn

	for {
		col, err := p.parseSelectColumn()
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)

		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken() // Skip comma
	}

	return columns, nil
}

// parseSelectColumn parses a single column in the SELECT clause.
func (p *Parser) parseSelectColumn() (SelectColumn, error) {
	col := SelectColumn{}

	if p.curTokenIs(TokenStar) {
		col.Expr = &StarExpr{}
		p.nextToken()
		return col, nil
	}

	expr, err := p.parseExpression(precLowest)
	if err != nil {
		return col, err
	}
	col.Expr = expr

	alias, err := p.parseAlias()
	if err != nil {
		return col, err
	}
	col.Alias = alias
	return col, nil
}

// parseAlias parses an optional [AS] identifier.
func (p *Parser) parseAlias() (string, error) {
	if p.curTokenIs(TokenAs) {
		p.nextToken()
		if !p.curTokenIs(TokenIdent) {
			return "", p.errorf("expected identifier after AS")
		}
		alias := p.curToken.Literal
		p.nextToken()
		return alias, nil
	}
	if p.curTokenIs(TokenIdent) {
		// Alias without AS
		alias := p.curToken.Literal
		p.nextToken()
		return alias, nil
	}
	return "", nil
}

// parseTableRef parses a table reference.
func (p *Parser) parseTableRef() (*TableRef, error) {
	if !p.curTokenIs(TokenIdent) {
		return nil, p.errorf("expected table name")
	}

	ref := &TableRef{Name: p.curToken.Literal}
	p.nextToken()

	alias, err := p.parseAlias()
	if err != nil {
		return nil, err
	}
	ref.Alias = alias
	return ref, nil
}

// parseOrderByList parses the ORDER BY clause items.
func (p *Parser) parseOrderByList() ([]OrderByClause, error) {
	var clauses []OrderByClause

	for {
		expr, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}

		clause := OrderByClause{Expr: expr}

		if p.curTokenIs(TokenAsc) {
			p.nextToken()
		} else if p.curTokenIs(TokenDesc) {
			clause.Desc = true
			p.nextToken()
		}

		clauses = append(clauses, clause)

		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken() // Skip comma
	}

	return clauses, nil
}

// Operator precedence levels
const (
	precLowest  = 0
	precOr      = 1
	precAnd     = 2
	precNot     = 3
	precCompare = 4
	precAdd     = 5
	precMul     = 6
	precUnary   = 7
)

// getPrecedence returns the precedence of the current token.
func (p *Parser) getPrecedence() int {
	switch p.curToken.Type {
	case TokenOr:
		return precOr
	case TokenAnd:
		return precAnd
	case TokenEq, TokenNe, TokenLt, TokenGt, TokenLe, TokenGe, TokenLike, TokenIn, TokenBetween, TokenIs:
		return precCompare
	case TokenNot:
		// Infix NOT only appears as NOT IN / NOT LIKE / NOT BETWEEN.
		if p.peekTokenIs(TokenIn) || p.peekTokenIs(TokenLike) || p.peekTokenIs(TokenBetween) {
			return precCompare
		}
		return precLowest
	case TokenPlus, TokenMinus:
		return precAdd
	case TokenStar, TokenSlash:
		return precMul
	default:
		return precLowest
	}
}

// parseExpression parses an expression with operator precedence.
func (p *Parser) parseExpression(precedence int) (Expression, error) {
	left, err := p.parsePrefixExpression()
	if err != nil {
		return nil, err
	}

	for !p.curTokenIs(TokenEOF) && precedence < p.getPrecedence() {
		left, err = p.parseInfixExpression(left)
		if err != nil {
			return nil, err
		}
	}

	return left, nil
}

// parsePrefixExpression parses a prefix expression.
func (p *Parser) parsePrefixExpression() (Expression, error) {
	switch p.curToken.Type {
	case TokenIdent:
		return p.parseIdentifierOrFunction()
	case TokenNumber:
		return p.parseNumber()
	case TokenString:
		return p.parseString()
	case TokenNull:
		p.nextToken()
		return &Literal{Value: nil}, nil
	case TokenTrue, TokenFalse:
		v := p.curTokenIs(TokenTrue)
		p.nextToken()
		return &Literal{Value: v}, nil
	case TokenLParen:
		return p.parseGroupedExpression()
	case TokenNot:
		return p.parseNotExpression()
	case TokenMinus:
		return p.parseUnaryMinus()
	case TokenStar:
		star := &StarExpr{}
		p.nextToken()
		return star, nil
	case TokenError:
		return nil, p.errorf("invalid token")
	default:
		return nil, p.errorf("unexpected token in expression")
	}
}

// parseIdentifierOrFunction parses an identifier, a function call or a
// typed literal such as TIMESTAMP '2024-01-01'.
func (p *Parser) parseIdentifierOrFunction() (Expression, error) {
	name := p.curToken.Literal
	p.nextToken()

	// Check for table.column
	if p.curTokenIs(TokenDot) {
		p.nextToken()
		if p.curTokenIs(TokenStar) {
			// table.*
			star := &StarExpr{Table: name}
			p.nextToken()
			return star, nil
		}
		if !p.curTokenIs(TokenIdent) {
			return nil, p.errorf("expected column name after dot")
		}
		col := &ColumnRef{Table: name, Column: p.curToken.Literal}
		p.nextToken()
		return col, nil
	}

	if p.curTokenIs(TokenLParen) {
		return p.parseFunctionCall(name)
	}

	if p.curTokenIs(TokenString) {
		switch strings.ToUpper(name) {
		case "TIMESTAMP", "DATE":
			ts, err := types.ParseTimestamp(p.curToken.Literal)
			if err != nil {
				return nil, p.errorf("invalid %s literal", strings.ToUpper(name))
			}
			p.nextToken()
			return &Literal{Value: ts}, nil
		}
	}

	return &ColumnRef{Column: name}, nil
}

// parseFunctionCall parses a function call.
func (p *Parser) parseFunctionCall(name string) (Expression, error) {
	p.nextToken() // Skip (

	var args []Expression
	if !p.curTokenIs(TokenRParen) {
		for {
			arg, err := p.parseExpression(precLowest)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)

			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
		}
	}

	if !p.curTokenIs(TokenRParen) {
		return nil, p.errorf("expected ) after function arguments")
	}
	p.nextToken()

	return &FunctionCall{Name: strings.ToUpper(name), Args: args}, nil
}

// parseNumber parses a numeric literal.
func (p *Parser) parseNumber() (Expression, error) {
	tok := p.curToken
	p.nextToken()

	if !strings.Contains(tok.Literal, ".") {
		val, err := strconv.ParseInt(tok.Literal, 10, 64)
		if err == nil {
			return &Literal{Value: val}, nil
		}
	}

	val, err := strconv.ParseFloat(tok.Literal, 64)
	if err != nil {
		return nil, &ParseError{Message: "invalid number", Position: tok.Pos, Token: tok}
	}
	return &Literal{Value: val}, nil
}

// parseString parses a string literal.
func (p *Parser) parseString() (Expression, error) {
	val := strings.ReplaceAll(p.curToken.Literal, "''", "'")
	p.nextToken()
	return &Literal{Value: val}, nil
}

// parseGroupedExpression parses a parenthesized expression. Parentheses
// only group; they leave no node behind.
func (p *Parser) parseGroupedExpression() (Expression, error) {
	p.nextToken() // Skip (

	expr, err := p.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}

	if !p.curTokenIs(TokenRParen) {
		return nil, p.errorf("expected )")
	}
	p.nextToken()

	return expr, nil
}

// parseNotExpression parses a NOT expression.
func (p *Parser) parseNotExpression() (Expression, error) {
	p.nextToken() // Skip NOT

	expr, err := p.parseExpression(precNot)
	if err != nil {
		return nil, err
	}

	return NewNot(expr), nil
}

// parseUnaryMinus parses a unary minus expression. Numeric literals are
// folded so -5 is the constant -5.
func (p *Parser) parseUnaryMinus() (Expression, error) {
	p.nextToken() // Skip -

	expr, err := p.parseExpression(precUnary)
	if err != nil {
		return nil, err
	}

	if lit, ok := expr.(*Literal); ok {
		switch v := lit.Value.(type) {
		case int64:
			return &Literal{Value: -v}, nil
		case float64:
			return &Literal{Value: -v}, nil
		}
	}
	return &UnaryExpr{Operator: "-", Operand: expr}, nil
}

// parseInfixExpression parses an infix expression.
func (p *Parser) parseInfixExpression(left Expression) (Expression, error) {
	switch p.curToken.Type {
	case TokenAnd, TokenOr:
		return p.parseBoolExpression(left)
	case TokenEq, TokenNe, TokenLt, TokenGt, TokenLe, TokenGe:
		return p.parseBinaryExpression(left)
	case TokenPlus, TokenMinus, TokenStar, TokenSlash:
		return p.parseBinaryExpression(left)
	case TokenLike:
		return p.parseLikeExpression(left, false)
	case TokenIn:
		return p.parseInExpression(left, false)
	case TokenBetween:
		return p.parseBetweenExpression(left, false)
	case TokenIs:
		return p.parseIsExpression(left)
	case TokenNot:
		return p.parseNotInfix(left)
	default:
		return left, nil
	}
}

// parseBoolExpression parses AND / OR, flattening chains of the same operator.
func (p *Parser) parseBoolExpression(left Expression) (Expression, error) {
	isAnd := p.curTokenIs(TokenAnd)
	precedence := p.getPrecedence()
	p.nextToken()

	right, err := p.parseExpression(precedence)
	if err != nil {
		return nil, err
	}

	if isAnd {
		return NewAnd(left, right), nil
	}
	return NewOr(left, right), nil
}

// parseBinaryExpression parses a comparison or arithmetic expression.
func (p *Parser) parseBinaryExpression(left Expression) (Expression, error) {
	op := p.curToken.Literal
	if p.curTokenIs(TokenNe) {
		op = "<>"
	}
	precedence := p.getPrecedence()
	p.nextToken()

	right, err := p.parseExpression(precedence)
	if err != nil {
		return nil, err
	}

	return &BinaryExpr{Left: left, Operator: op, Right: right}, nil
}

// parseLikeExpression parses a LIKE expression.
func (p *Parser) parseLikeExpression(left Expression, not bool) (Expression, error) {
	p.nextToken() // Skip LIKE

	pattern, err := p.parseExpression(precCompare)
	if err != nil {
		return nil, err
	}

	return &LikeExpr{Expr: left, Pattern: pattern, Not: not}, nil
}

// parseInExpression parses an IN expression.
func (p *Parser) parseInExpression(left Expression, not bool) (Expression, error) {
	p.nextToken() // Skip IN

	if !p.curTokenIs(TokenLParen) {
		return nil, p.errorf("expected ( after IN")
	}
	p.nextToken()

	var values []Expression
	for {
		val, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		values = append(values, val)

		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}

	if !p.curTokenIs(TokenRParen) {
		return nil, p.errorf("expected ) after IN values")
	}
	p.nextToken()

	return &InExpr{Expr: left, Values: values, Not: not}, nil
}

// parseBetweenExpression parses a BETWEEN expression.
func (p *Parser) parseBetweenExpression(left Expression, not bool) (Expression, error) {
	p.nextToken() // Skip BETWEEN

	low, err := p.parseExpression(precCompare)
	if err != nil {
		return nil, err
	}

	if !p.curTokenIs(TokenAnd) {
		return nil, p.errorf("expected AND in BETWEEN expression")
	}
	p.nextToken()

	high, err := p.parseExpression(precCompare)
	if err != nil {
		return nil, err
	}

	return &BetweenExpr{Expr: left, Low: low, High: high, Not: not}, nil
}

// parseIsExpression parses an IS NULL or IS NOT NULL expression.
func (p *Parser) parseIsExpression(left Expression) (Expression, error) {
	p.nextToken() // Skip IS

	not := false
	if p.curTokenIs(TokenNot) {
		not = true
		p.nextToken()
	}

	if !p.curTokenIs(TokenNull) {
		return nil, p.errorf("expected NULL after IS")
	}
	p.nextToken()

	return &IsNullExpr{Expr: left, Not: not}, nil
}

// parseNotInfix parses NOT IN, NOT LIKE, NOT BETWEEN.
func (p *Parser) parseNotInfix(left Expression) (Expression, error) {
	p.nextToken() // Skip NOT

	switch p.curToken.Type {
	case TokenIn:
		return p.parseInExpression(left, true)
	case TokenLike:
		return p.parseLikeExpression(left, true)
	case TokenBetween:
		return p.parseBetweenExpression(left, true)
	default:
		return nil, p.errorf("expected IN, LIKE, or BETWEEN after NOT")
	}
}
