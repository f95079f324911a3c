package query

import "testing"

func TestLexer(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []TokenType
		values   []string
	}{
		{
			name:     "simple equality",
			input:    "status=open",
			expected: []TokenType{TokenIdent, TokenEquals, TokenIdent, TokenEOF},
			values:   []string{"status", "=", "open", ""},
		},
		{
			name:     "not equals",
			input:    "status!=closed",
			expected: []TokenType{TokenIdent, TokenNotEquals, TokenIdent, TokenEOF},
			values:   []string{"status", "!=", "closed", ""},
		},
		{
			name:     "greater than",
			input:    "priority>1",
			expected: []TokenType{TokenIdent, TokenGreater, TokenNumber, TokenEOF},
			values:   []string{"priority", ">", "1", ""},
		},
		{
			name:     "less than or equal",
			input:    "priority<=3",
			expected: []TokenType{TokenIdent, TokenLessEq, TokenNumber, TokenEOF},
			values:   []string{"priority", "<=", "3", ""},
		},
		{
			name:     "AND expression",
			input:    "status=open AND priority>1",
			expected: []TokenType{TokenIdent, TokenEquals, TokenIdent, TokenAnd, TokenIdent, TokenGreater, TokenNumber, TokenEOF},
			values:   []string{"status", "=", "open", "AND", "priority", ">", "1", ""},
		},
		{
			name:     "OR expression",
			input:    "status=open OR status=blocked",
			expected: []TokenType{TokenIdent, TokenEquals, TokenIdent, TokenOr, TokenIdent, TokenEquals, TokenIdent, TokenEOF},
			values:   []string{"status", "=", "open", "OR", "status", "=", "blocked", ""},
		},
		{
			name:     "NOT expression",
			input:    "NOT status=closed",
			expected: []TokenType{TokenNot, TokenIdent, TokenEquals, TokenIdent, TokenEOF},
			values:   []string{"NOT", "status", "=", "closed", ""},
		},
		{
			name:     "parentheses",
			input:    "(status=open)",
			expected: []TokenType{TokenLParen, TokenIdent, TokenEquals, TokenIdent, TokenRParen, TokenEOF},
			values:   []string{"(", "status", "=", "open", ")", ""},
		},
		{
			name:     "quoted string",
			input:    `title="hello world"`,
			expected: []TokenType{TokenIdent, TokenEquals, TokenString, TokenEOF},
			values:   []string{"title", "=", "hello world", ""},
		},
		{
			name:     "case insensitive keywords",
			input:    "status=open and priority>1 or type=bug",
			expected: []TokenType{TokenIdent, TokenEquals, TokenIdent, TokenAnd, TokenIdent, TokenGreater, TokenNumber, TokenOr, TokenIdent, TokenEquals, TokenIdent, TokenEOF},
		},
		{
			name:     "negative number",
			input:    "priority>-1",
			expected: []TokenType{TokenIdent, TokenGreater, TokenNumber, TokenEOF},
			values:   []string{"priority", ">", "-1", ""},
		},
		{
			name:     "identifier with hyphen",
			input:    "owner=ab-cd12",
			expected: []TokenType{TokenIdent, TokenEquals, TokenIdent, TokenEOF},
			values:   []string{"owner", "=", "ab-cd12", ""},
		},
		{
			name:     "contains keyword",
			input:    `title contains "launch"`,
			expected: []TokenType{TokenIdent, TokenContains, TokenString, TokenEOF},
			values:   []string{"title", "contains", "launch", ""},
		},
		{
			name:     "in keyword with list",
			input:    "status in (open, blocked)",
			expected: []TokenType{TokenIdent, TokenIn, TokenLParen, TokenIdent, TokenComma, TokenIdent, TokenRParen, TokenEOF},
			values:   []string{"status", "in", "(", "open", ",", "blocked", ")", ""},
		},
		{
			name:     "isSet keyword",
			input:    "assignee isSet",
			expected: []TokenType{TokenIdent, TokenIsSet, TokenEOF},
			values:   []string{"assignee", "isSet", ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lexer := NewLexer(tt.input)
			tokens, err := lexer.Tokenize()
			if err != nil {
				t.Fatalf("Tokenize() error = %v", err)
			}

			if len(tokens) != len(tt.expected) {
				t.Fatalf("got %d tokens, want %d", len(tokens), len(tt.expected))
			}

			for i, tok := range tokens {
				if tok.Type != tt.expected[i] {
					t.Errorf("token %d: got type %v, want %v", i, tok.Type, tt.expected[i])
				}
				if tt.values != nil && tok.Value != tt.values[i] {
					t.Errorf("token %d: got value %q, want %q", i, tok.Value, tt.values[i])
				}
			}
		})
	}
}

func TestLexerErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unterminated string", `title="hello`},
		{"invalid character", "status@open"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lexer := NewLexer(tt.input)
			_, err := lexer.Tokenize()
			if err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestParser(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple comparison",
			input:    "status=open",
			expected: "status=open",
		},
		{
			name:     "AND expression",
			input:    "status=open AND priority>1",
			expected: "(status=open AND priority>1)",
		},
		{
			name:     "OR expression",
			input:    "status=open OR status=blocked",
			expected: "(status=open OR status=blocked)",
		},
		{
			name:     "NOT expression",
			input:    "NOT status=closed",
			expected: "NOT status=closed",
		},
		{
			name:     "parentheses",
			input:    "(status=open OR status=blocked) AND priority<2",
			expected: "((status=open OR status=blocked) AND priority<2)",
		},
		{
			name:     "AND has higher precedence than OR",
			input:    "status=open OR priority>1 AND type=bug",
			expected: "(status=open OR (priority>1 AND type=bug))",
		},
		{
			name:     "contains",
			input:    `title contains "launch"`,
			expected: "title contains launch",
		},
		{
			name:     "in list",
			input:    "status in (open, blocked)",
			expected: "status in (open, blocked)",
		},
		{
			name:     "isSet",
			input:    "assignee isSet",
			expected: "assignee isSet",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}

			got := node.String()
			if got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestParserErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty query", ""},
		{"missing value", "status="},
		{"missing operator", "status open"},
		{"unclosed paren", "(status=open"},
		{"extra paren", "status=open)"},
		{"missing operand after AND", "status=open AND"},
		{"invalid operator", "status~open"},
		{"in without parens", "status in open"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			if err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestParseFilterLeaf(t *testing.T) {
	f, err := ParseFilter("status=open")
	if err != nil {
		t.Fatalf("ParseFilter() error = %v", err)
	}
	if !f.IsLeaf() || f.Field != "status" || f.Op != OpEq || f.Value != "open" {
		t.Errorf("got %+v", f)
	}
}

func TestParseFilterAndOr(t *testing.T) {
	f, err := ParseFilter("status=open AND priority>1")
	if err != nil {
		t.Fatalf("ParseFilter() error = %v", err)
	}
	if f.IsLeaf() || len(f.And) != 2 {
		t.Fatalf("expected a 2-child And node, got %+v", f)
	}
	if f.And[0].Field != "status" || f.And[1].Field != "priority" || f.And[1].Op != OpGt {
		t.Errorf("got %+v", f)
	}
}

func TestParseFilterNotPushesToLeaf(t *testing.T) {
	f, err := ParseFilter("NOT status=closed")
	if err != nil {
		t.Fatalf("ParseFilter() error = %v", err)
	}
	if !f.IsLeaf() || !f.Not || f.Field != "status" {
		t.Errorf("expected a negated leaf, got %+v", f)
	}
}

func TestParseFilterNotGroupAppliesDeMorgan(t *testing.T) {
	f, err := ParseFilter("NOT (status=open AND priority>1)")
	if err != nil {
		t.Fatalf("ParseFilter() error = %v", err)
	}
	if f.IsLeaf() || len(f.Or) != 2 {
		t.Fatalf("expected NOT(A AND B) to become OR(NOT A, NOT B), got %+v", f)
	}
	if !f.Or[0].Not || !f.Or[1].Not {
		t.Errorf("expected both children negated, got %+v", f)
	}
}

func TestParseFilterInAndIsSet(t *testing.T) {
	f, err := ParseFilter("status in (open, blocked)")
	if err != nil {
		t.Fatalf("ParseFilter() error = %v", err)
	}
	if f.Op != OpIn || len(f.Values) != 2 {
		t.Fatalf("got %+v", f)
	}

	f, err = ParseFilter("assignee isSet")
	if err != nil {
		t.Fatalf("ParseFilter() error = %v", err)
	}
	if f.Op != OpIsSet {
		t.Errorf("got %+v", f)
	}
}

func TestFilterReferencesField(t *testing.T) {
	f, err := ParseFilter("status=open AND deleted=true")
	if err != nil {
		t.Fatalf("ParseFilter() error = %v", err)
	}
	if !f.referencesField("deleted") {
		t.Error("expected deleted to be referenced")
	}
	if f.referencesField("owner") {
		t.Error("did not expect owner to be referenced")
	}
}
