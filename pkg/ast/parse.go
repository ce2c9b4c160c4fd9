package ast

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// Parse decodes a JSON-encoded Program from r.
func Parse(r io.Reader) (*Program, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading AST: %w", err)
	}
	return ParseBytes(data)
}

// ParseBytes decodes a JSON-encoded Program.
//
// Every node is an object with a "kind" field naming its type, e.g.
//
//	{"kind": "Program", "body": [{"kind": "ShowStmt", "expression": {...}}]}
func ParseBytes(data []byte) (*Program, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("empty AST document")
	}
	var wire struct {
		Kind string            `json:"kind"`
		Body []json.RawMessage `json:"body"`
		Loc  *SourceLocation   `json:"loc"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	if wire.Kind != "" && wire.Kind != "Program" {
		return nil, fmt.Errorf("expected Program node, got %q", wire.Kind)
	}
	body, err := decodeStatements(wire.Body)
	if err != nil {
		return nil, err
	}
	return &Program{Base: Base{Loc: wire.Loc}, Body: body}, nil
}

// header is decoded first to dispatch on the node kind.
type header struct {
	Kind string          `json:"kind"`
	Loc  *SourceLocation `json:"loc"`
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func decodeStatements(raws []json.RawMessage) ([]Statement, error) {
	stmts := make([]Statement, 0, len(raws))
	for i, raw := range raws {
		s, err := decodeStatement(raw)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
		stmts = append(stmts, s)
	}
	return stmts, nil
}

func decodeExpressions(raws []json.RawMessage) ([]Expression, error) {
	exprs := make([]Expression, 0, len(raws))
	for i, raw := range raws {
		e, err := decodeExpression(raw)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		exprs = append(exprs, e)
	}
	return exprs, nil
}

func decodeBlock(raw json.RawMessage) (*Block, error) {
	if isAbsent(raw) {
		return nil, nil
	}
	var w struct {
		Body []json.RawMessage `json:"body"`
		Loc  *SourceLocation   `json:"loc"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("block: %w", err)
	}
	body, err := decodeStatements(w.Body)
	if err != nil {
		return nil, err
	}
	return &Block{Base: Base{Loc: w.Loc}, Body: body}, nil
}

func decodeIdentifier(raw json.RawMessage) (*Identifier, error) {
	if isAbsent(raw) {
		return nil, fmt.Errorf("missing identifier")
	}
	var w struct {
		Name string          `json:"name"`
		Loc  *SourceLocation `json:"loc"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("identifier: %w", err)
	}
	return &Identifier{Base: Base{Loc: w.Loc}, Name: w.Name}, nil
}

func decodeStatement(raw json.RawMessage) (Statement, error) {
	var h header
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, err
	}
	base := Base{Loc: h.Loc}

	switch h.Kind {
	case "LetStmt":
		var w struct {
			Name  json.RawMessage `json:"name"`
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		name, err := decodeIdentifier(w.Name)
		if err != nil {
			return nil, err
		}
		value, err := decodeExpression(w.Value)
		if err != nil {
			return nil, err
		}
		return &LetStmt{Base: base, Name: name, Value: value}, nil

	case "AssignStmt":
		var w struct {
			Name   json.RawMessage `json:"name"`
			Target json.RawMessage `json:"target"`
			Value  json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		targetRaw := w.Target
		if isAbsent(targetRaw) {
			targetRaw = w.Name
		}
		target, err := decodeExpression(targetRaw)
		if err != nil {
			return nil, fmt.Errorf("assignment target: %w", err)
		}
		value, err := decodeExpression(w.Value)
		if err != nil {
			return nil, err
		}
		return &AssignStmt{Base: base, Target: target, Value: value}, nil

	case "ShowStmt", "ExprStmt":
		var w struct {
			Expression json.RawMessage `json:"expression"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		e, err := decodeExpression(w.Expression)
		if err != nil {
			return nil, err
		}
		if h.Kind == "ShowStmt" {
			return &ShowStmt{Base: base, Expression: e}, nil
		}
		return &ExprStmt{Base: base, Expression: e}, nil

	case "IfStmt":
		var w struct {
			Condition json.RawMessage `json:"condition"`
			Then      json.RawMessage `json:"thenBlock"`
			Else      json.RawMessage `json:"elseBlock"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		cond, err := decodeExpression(w.Condition)
		if err != nil {
			return nil, err
		}
		then, err := decodeBlock(w.Then)
		if err != nil {
			return nil, err
		}
		if then == nil {
			then = &Block{}
		}
		els, err := decodeBlock(w.Else)
		if err != nil {
			return nil, err
		}
		return &IfStmt{Base: base, Condition: cond, Then: then, Else: els}, nil

	case "RepeatStmt":
		var w struct {
			Count json.RawMessage `json:"count"`
			Body  json.RawMessage `json:"body"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		count, err := decodeExpression(w.Count)
		if err != nil {
			return nil, err
		}
		body, err := decodeBlock(w.Body)
		if err != nil {
			return nil, err
		}
		if body == nil {
			body = &Block{}
		}
		return &RepeatStmt{Base: base, Count: count, Body: body}, nil

	case "WhileStmt":
		var w struct {
			Condition json.RawMessage `json:"condition"`
			Body      json.RawMessage `json:"body"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		cond, err := decodeExpression(w.Condition)
		if err != nil {
			return nil, err
		}
		body, err := decodeBlock(w.Body)
		if err != nil {
			return nil, err
		}
		if body == nil {
			body = &Block{}
		}
		return &WhileStmt{Base: base, Condition: cond, Body: body}, nil

	case "FuncDecl":
		var w struct {
			Name   json.RawMessage   `json:"name"`
			Params []json.RawMessage `json:"params"`
			Body   json.RawMessage   `json:"body"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		name, err := decodeIdentifier(w.Name)
		if err != nil {
			return nil, err
		}
		params := make([]*Identifier, 0, len(w.Params))
		for _, p := range w.Params {
			id, err := decodeIdentifier(p)
			if err != nil {
				return nil, fmt.Errorf("parameter: %w", err)
			}
			params = append(params, id)
		}
		body, err := decodeBlock(w.Body)
		if err != nil {
			return nil, err
		}
		if body == nil {
			body = &Block{}
		}
		return &FuncDecl{Base: base, Name: name, Params: params, Body: body}, nil

	case "ReturnStmt":
		var w struct {
			Argument json.RawMessage `json:"argument"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		stmt := &ReturnStmt{Base: base}
		if !isAbsent(w.Argument) {
			arg, err := decodeExpression(w.Argument)
			if err != nil {
				return nil, err
			}
			stmt.Argument = arg
		}
		return stmt, nil

	case "Block":
		return decodeBlock(raw)

	case "ImportStmt":
		var w struct {
			Module string `json:"module"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		if w.Module == "" {
			return nil, fmt.Errorf("import without module name")
		}
		return &ImportStmt{Base: base, Module: w.Module}, nil

	case "ExportStmt":
		var w struct {
			Declaration json.RawMessage `json:"declaration"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		decl, err := decodeStatement(w.Declaration)
		if err != nil {
			return nil, fmt.Errorf("export: %w", err)
		}
		return &ExportStmt{Base: base, Declaration: decl}, nil

	case "":
		return nil, fmt.Errorf("statement node without kind")
	default:
		return nil, fmt.Errorf("unknown statement kind %q", h.Kind)
	}
}

func decodeExpression(raw json.RawMessage) (Expression, error) {
	if isAbsent(raw) {
		return nil, fmt.Errorf("missing expression")
	}
	var h header
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, err
	}
	base := Base{Loc: h.Loc}

	switch h.Kind {
	case "Literal":
		return decodeLiteral(raw, base)

	case "Identifier":
		return decodeIdentifier(raw)

	case "BinaryExpr":
		var w struct {
			Operator string          `json:"operator"`
			Left     json.RawMessage `json:"left"`
			Right    json.RawMessage `json:"right"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		left, err := decodeExpression(w.Left)
		if err != nil {
			return nil, err
		}
		right, err := decodeExpression(w.Right)
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Base: base, Operator: w.Operator, Left: left, Right: right}, nil

	case "UnaryExpr":
		var w struct {
			Operator string          `json:"operator"`
			Argument json.RawMessage `json:"argument"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		arg, err := decodeExpression(w.Argument)
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Base: base, Operator: w.Operator, Argument: arg}, nil

	case "CallExpr":
		var w struct {
			Callee    json.RawMessage   `json:"callee"`
			Arguments []json.RawMessage `json:"arguments"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		callee, err := decodeExpression(w.Callee)
		if err != nil {
			return nil, err
		}
		args, err := decodeExpressions(w.Arguments)
		if err != nil {
			return nil, err
		}
		return &CallExpr{Base: base, Callee: callee, Arguments: args}, nil

	case "ArrayLiteral":
		var w struct {
			Elements []json.RawMessage `json:"elements"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		elems, err := decodeExpressions(w.Elements)
		if err != nil {
			return nil, err
		}
		return &ArrayLiteral{Base: base, Elements: elems}, nil

	case "ObjectLiteral":
		var w struct {
			Properties []json.RawMessage `json:"properties"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		props := make([]*Property, 0, len(w.Properties))
		for _, p := range w.Properties {
			prop, err := decodeProperty(p)
			if err != nil {
				return nil, err
			}
			props = append(props, prop)
		}
		return &ObjectLiteral{Base: base, Properties: props}, nil

	case "IndexExpr":
		var w struct {
			Object json.RawMessage `json:"object"`
			Index  json.RawMessage `json:"index"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		obj, err := decodeExpression(w.Object)
		if err != nil {
			return nil, err
		}
		idx, err := decodeExpression(w.Index)
		if err != nil {
			return nil, err
		}
		return &IndexExpr{Base: base, Object: obj, Index: idx}, nil

	case "MemberExpr":
		var w struct {
			Object   json.RawMessage `json:"object"`
			Property json.RawMessage `json:"property"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		obj, err := decodeExpression(w.Object)
		if err != nil {
			return nil, err
		}
		prop, err := decodeIdentifier(w.Property)
		if err != nil {
			return nil, err
		}
		return &MemberExpr{Base: base, Object: obj, Property: prop}, nil

	case "":
		return nil, fmt.Errorf("expression node without kind")
	default:
		return nil, fmt.Errorf("unknown expression kind %q", h.Kind)
	}
}

func decodeLiteral(raw json.RawMessage, base Base) (*Literal, error) {
	var w struct {
		Value json.RawMessage `json:"value"`
		Raw   string          `json:"raw"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	lit := &Literal{Base: base, Raw: w.Raw}
	if isAbsent(w.Value) {
		return lit, nil
	}
	var v interface{}
	if err := json.Unmarshal(w.Value, &v); err != nil {
		return nil, err
	}
	switch v.(type) {
	case float64, string, bool:
		lit.Value = v
	default:
		return nil, fmt.Errorf("unsupported literal value %s", string(w.Value))
	}
	return lit, nil
}

func decodeProperty(raw json.RawMessage) (*Property, error) {
	var w struct {
		Key   json.RawMessage `json:"key"`
		Value json.RawMessage `json:"value"`
		Loc   *SourceLocation `json:"loc"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	keyNode, err := decodeExpression(w.Key)
	if err != nil {
		return nil, fmt.Errorf("property key: %w", err)
	}
	var key string
	switch k := keyNode.(type) {
	case *Identifier:
		key = k.Name
	case *Literal:
		switch kv := k.Value.(type) {
		case string:
			key = kv
		case float64:
			key = strconv.FormatFloat(kv, 'f', -1, 64)
		default:
			return nil, fmt.Errorf("property key must be a string or number literal")
		}
	default:
		return nil, fmt.Errorf("property key must be an identifier or literal, got %s", keyNode.Kind())
	}
	value, err := decodeExpression(w.Value)
	if err != nil {
		return nil, err
	}
	return &Property{Base: Base{Loc: w.Loc}, Key: key, Value: value}, nil
}
