package rules

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// fileGrammar is the participle grammar for rule files.
//
//nolint:govet // participle grammar tags are not standard struct tags
type fileGrammar struct {
	Blocks []*blockGrammar `@@*`
}

//nolint:govet // participle grammar tags are not standard struct tags
type blockGrammar struct {
	Pos     lexer.Position
	Scope   string           `@("structure" | "client")`
	From    string           `@Number`
	To      string           `"->" @Number`
	Actions []*actionGrammar `"{" @@* "}"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type actionGrammar struct {
	Pos     lexer.Position
	Flag    *flagGrammar    `(  "flag" @@`
	Clear   *string         ` | "clear" @Number`
	Rename  *renameGrammar  ` | "rename" @@`
	Drop    *dropGrammar    ` | "drop" @@`
	Set     *setGrammar     ` | "set" @@`
	Replace *replaceGrammar ` | "replace" @@`
	Remove  *removeGrammar  ` | "remove" @@ ) ";"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type flagGrammar struct {
	From string `@Number`
	To   string `"->" @Number`
}

//nolint:govet // participle grammar tags are not standard struct tags
type renameGrammar struct {
	From string   `@Ident`
	To   string   `"->" @Ident`
	On   []string `("on" @Number ("," @Number)*)?`
}

//nolint:govet // participle grammar tags are not standard struct tags
type dropGrammar struct {
	Name string   `@Ident`
	On   []string `("on" @Number ("," @Number)*)?`
}

//nolint:govet // participle grammar tags are not standard struct tags
type setGrammar struct {
	Name   string   `@Ident`
	Type   string   `(":" @Ident)?`
	String *string  `"=" ( @String`
	Number *string  `    | @Number )`
	On     []string `("on" @Number ("," @Number)*)?`
}

//nolint:govet // participle grammar tags are not standard struct tags
type replaceGrammar struct {
	From string `@Number`
	To   string `"->" @Number`
}

//nolint:govet // participle grammar tags are not standard struct tags
type removeGrammar struct {
	IDs []string `@Number ("," @Number)*`
}

// rulesLexer defines tokens for rule files. Keywords lex as identifiers.
var rulesLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `(#|//)[^\n]*`},
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "Number", Pattern: `-?(0[xX][0-9a-fA-F]+|[0-9]+(\.[0-9]+)?)`},
	{Name: "Arrow", Pattern: `->`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Punct", Pattern: `[{};=:,]`},
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
})

var rulesParser = participle.MustBuild[fileGrammar](
	participle.Lexer(rulesLexer),
	participle.Elide("Comment", "Whitespace"),
	participle.Unquote("String"),
)
