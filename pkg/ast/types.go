// Package ast defines types for the Pumpkin AST produced by the front-end parser.
//
// The parser is an external collaborator; it hands the core a JSON document in
// which every node carries a "kind" discriminator (see Parse).
package ast

// SourceLocation is the byte span and line/column a node was parsed from.
type SourceLocation struct {
	Start int `json:"start"`
	End   int `json:"end"`
	Line  int `json:"line"`
	Col   int `json:"col"`
}

// Node is implemented by every statement and expression.
type Node interface {
	Kind() string
	Location() *SourceLocation
}

// Statement is a node that may appear in a program or block body.
type Statement interface {
	Node
	stmtNode()
}

// Expression is a node that produces a value.
type Expression interface {
	Node
	exprNode()
}

// Base carries the optional location shared by all nodes.
type Base struct {
	Loc *SourceLocation `json:"loc,omitempty"`
}

// Location returns the node's source location, or nil when the parser did not record one.
func (b Base) Location() *SourceLocation {
	return b.Loc
}

// SetLocation records where the node was parsed from.
func (b *Base) SetLocation(loc *SourceLocation) {
	b.Loc = loc
}

// LineOf returns the source line of n, or 0 when unknown.
func LineOf(n Node) int {
	if n == nil {
		return 0
	}
	if loc := n.Location(); loc != nil {
		return loc.Line
	}
	return 0
}

// Program is the root node.
type Program struct {
	Base
	Body []Statement
}

func (*Program) Kind() string { return "Program" }

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// LetStmt declares (or overwrites) a binding: let name = value.
type LetStmt struct {
	Base
	Name  *Identifier
	Value Expression
}

// AssignStmt assigns to an existing binding or an indexed element.
// Target is either an *Identifier or an *IndexExpr for well-formed programs.
type AssignStmt struct {
	Base
	Target Expression
	Value  Expression
}

// ShowStmt prints the display form of an expression.
type ShowStmt struct {
	Base
	Expression Expression
}

// IfStmt is a conditional with an optional else block.
type IfStmt struct {
	Base
	Condition Expression
	Then      *Block
	Else      *Block
}

// RepeatStmt runs Body Count times.
type RepeatStmt struct {
	Base
	Count Expression
	Body  *Block
}

// WhileStmt runs Body while Condition is truthy.
type WhileStmt struct {
	Base
	Condition Expression
	Body      *Block
}

// FuncDecl declares a named function.
type FuncDecl struct {
	Base
	Name   *Identifier
	Params []*Identifier
	Body   *Block
}

// ReturnStmt returns from the current function. Argument may be nil.
type ReturnStmt struct {
	Base
	Argument Expression
}

// ExprStmt evaluates an expression for its side effects.
type ExprStmt struct {
	Base
	Expression Expression
}

// Block is a sequence of statements. Blocks do not introduce a scope.
type Block struct {
	Base
	Body []Statement
}

// ImportStmt binds a registered module under the last segment of its path.
type ImportStmt struct {
	Base
	Module string
}

// ExportStmt wraps a LetStmt or FuncDecl whose binding is recorded as an export.
type ExportStmt struct {
	Base
	Declaration Statement
}

func (*LetStmt) Kind() string    { return "LetStmt" }
func (*AssignStmt) Kind() string { return "AssignStmt" }
func (*ShowStmt) Kind() string   { return "ShowStmt" }
func (*IfStmt) Kind() string     { return "IfStmt" }
func (*RepeatStmt) Kind() string { return "RepeatStmt" }
func (*WhileStmt) Kind() string  { return "WhileStmt" }
func (*FuncDecl) Kind() string   { return "FuncDecl" }
func (*ReturnStmt) Kind() string { return "ReturnStmt" }
func (*ExprStmt) Kind() string   { return "ExprStmt" }
func (*Block) Kind() string      { return "Block" }
func (*ImportStmt) Kind() string { return "ImportStmt" }
func (*ExportStmt) Kind() string { return "ExportStmt" }

func (*LetStmt) stmtNode()    {}
func (*AssignStmt) stmtNode() {}
func (*ShowStmt) stmtNode()   {}
func (*IfStmt) stmtNode()     {}
func (*RepeatStmt) stmtNode() {}
func (*WhileStmt) stmtNode()  {}
func (*FuncDecl) stmtNode()   {}
func (*ReturnStmt) stmtNode() {}
func (*ExprStmt) stmtNode()   {}
func (*Block) stmtNode()      {}
func (*ImportStmt) stmtNode() {}
func (*ExportStmt) stmtNode() {}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// BinaryExpr applies Operator to Left and Right.
type BinaryExpr struct {
	Base
	Operator string
	Left     Expression
	Right    Expression
}

// UnaryExpr applies Operator ("-", "!" or "not") to Argument.
type UnaryExpr struct {
	Base
	Operator string
	Argument Expression
}

// CallExpr calls Callee with Arguments.
type CallExpr struct {
	Base
	Callee    Expression
	Arguments []Expression
}

// Literal is a number, string, boolean or null constant.
// Value holds float64, string, bool or nil.
type Literal struct {
	Base
	Value interface{}
	Raw   string
}

// Identifier references a binding by name.
type Identifier struct {
	Base
	Name string
}

// ArrayLiteral builds a list.
type ArrayLiteral struct {
	Base
	Elements []Expression
}

// ObjectLiteral builds an object from key/value properties.
type ObjectLiteral struct {
	Base
	Properties []*Property
}

// Property is one key/value pair of an ObjectLiteral.
// Key is resolved from either an identifier or a string literal key.
type Property struct {
	Base
	Key   string
	Value Expression
}

// IndexExpr reads Object[Index].
type IndexExpr struct {
	Base
	Object Expression
	Index  Expression
}

// MemberExpr reads Object.Property.
type MemberExpr struct {
	Base
	Object   Expression
	Property *Identifier
}

func (*BinaryExpr) Kind() string    { return "BinaryExpr" }
func (*UnaryExpr) Kind() string     { return "UnaryExpr" }
func (*CallExpr) Kind() string      { return "CallExpr" }
func (*Literal) Kind() string       { return "Literal" }
func (*Identifier) Kind() string    { return "Identifier" }
func (*ArrayLiteral) Kind() string  { return "ArrayLiteral" }
func (*ObjectLiteral) Kind() string { return "ObjectLiteral" }
func (*IndexExpr) Kind() string     { return "IndexExpr" }
func (*MemberExpr) Kind() string    { return "MemberExpr" }

func (*BinaryExpr) exprNode()    {}
func (*UnaryExpr) exprNode()     {}
func (*CallExpr) exprNode()      {}
func (*Literal) exprNode()       {}
func (*Identifier) exprNode()    {}
func (*ArrayLiteral) exprNode()  {}
func (*ObjectLiteral) exprNode() {}
func (*IndexExpr) exprNode()     {}
func (*MemberExpr) exprNode()    {}
