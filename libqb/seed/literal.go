package seed

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/pkg/errors"
	"github.com/qbound/qbound/qbound"
)

// The upstream dataset is written as dict literals, e.g.
//
//	{'Bw': 1, 'BW': 0}
//	{'0_spectators': {'@'}, '1_spectators': {'Bw'}, '2_spectators': set()}
//
// It is parsed, never evaluated.

type Dict struct {
	Entries []*Entry `"{" ( @@ ( "," @@ )* )? "}"`
}

type Entry struct {
	Key   string `@String ":"`
	Value *Value `@@`
}

type Value struct {
	Int      *int `  @Int`
	Set      *Set `| @@`
	EmptySet bool `| @( "set" "(" ")" )`
}

type Set struct {
	Items []string `"{" ( @String ( "," @String )* )? "}"`
}

var literalLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `'(\\.|[^'\\])*'`},
	{Name: "Int", Pattern: `-?\d+`},
	{Name: "Ident", Pattern: `[a-zA-Z_]\w*`},
	{Name: "Punct", Pattern: `[{}(),:]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var parseDict = participle.MustBuild[Dict](
	participle.Lexer(literalLexer),
	participle.Elide("Whitespace"),
)

// unquote strips the quotes from a single-quoted literal and resolves backslash escapes.
func unquote(lit string) string {
	lit = lit[1 : len(lit)-1]
	if !strings.ContainsRune(lit, '\\') {
		return lit
	}
	b := strings.Builder{}
	for i := 0; i < len(lit); i++ {
		c := lit[i]
		if c == '\\' && i+1 < len(lit) {
			i++
			c = lit[i]
		}
		b.WriteByte(c)
	}
	return b.String()
}

func parseLiteral(name string, text []byte) (*Dict, error) {
	dict, err := parseDict.ParseBytes(name, text)
	if err != nil {
		return nil, errors.Wrapf(qbound.ErrUnmarshal, "%s: %v", name, err)
	}
	return dict, nil
}

// ParseValueTable reads a graph6 => value literal.  Keys are returned as written upstream.
func ParseValueTable(name string, text []byte) (map[string]int, error) {
	dict, err := parseLiteral(name, text)
	if err != nil {
		return nil, err
	}
	table := make(map[string]int, len(dict.Entries))
	for _, entry := range dict.Entries {
		if entry.Value.Int == nil || *entry.Value.Int < 0 {
			return nil, errors.Wrapf(qbound.ErrUnmarshal, "%s: entry %s is not a non-negative integer", name, entry.Key)
		}
		table[unquote(entry.Key)] = *entry.Value.Int
	}
	return table, nil
}

const spectatorsSuffix = "_spectators"

// ParseMinimals reads a "{k}_spectators" => set of graph6 literal.
func ParseMinimals(name string, text []byte) (map[int][]string, error) {
	dict, err := parseLiteral(name, text)
	if err != nil {
		return nil, err
	}
	minimals := make(map[int][]string, len(dict.Entries))
	for _, entry := range dict.Entries {
		label := unquote(entry.Key)
		k, err := strconv.Atoi(strings.TrimSuffix(label, spectatorsSuffix))
		if err != nil || !strings.HasSuffix(label, spectatorsSuffix) || k < 0 {
			return nil, errors.Wrapf(qbound.ErrUnmarshal, "%s: bad minimals label %q", name, label)
		}
		switch {
		case entry.Value.Set != nil:
			for _, item := range entry.Value.Set.Items {
				minimals[k] = append(minimals[k], unquote(item))
			}
		case entry.Value.EmptySet:
		default:
			return nil, errors.Wrapf(qbound.ErrUnmarshal, "%s: %s is not a set", name, label)
		}
	}
	return minimals, nil
}
