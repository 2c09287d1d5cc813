package ribca

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/carbocation/pfx"
	"gopkg.in/guregu/null.v3"
)

// maxVoteLine bounds a single line of the votes file.
const maxVoteLine = 64 << 20

// VoteValue is one cell's vote distribution: either a positional list or a
// mapping from class name to weight.
type VoteValue struct {
	Keyed bool

	// Keys holds the mapping's keys in order of first appearance. It is nil for
	// lists.
	Keys   []string
	Values []float64
}

// VoteSyntaxError reports malformed vote text. Offset is the byte position
// where parsing failed.
type VoteSyntaxError struct {
	Offset int
	Msg    string
}

func (e *VoteSyntaxError) Error() string {
	return fmt.Sprintf("votes: offset %d: %s", e.Offset, e.Msg)
}

// ParseVotes parses a vote distribution. Accepted forms are a list or tuple of
// numbers, e.g. [0.1, 0.9] or (1, 2), and a mapping of quoted-string or integer
// keys to numbers, e.g. {'T cell': 3, 'B cell': 1.5}. Numbers may also be
// True, False, nan or inf, optionally signed. A trailing comma is allowed.
// Repeated mapping keys keep their first position and their last value.
func ParseVotes(s string) (VoteValue, error) {
	p := &voteParser{s: s}

	var v VoteValue
	var err error

	p.skipSpace()
	switch p.peek() {
	case '[':
		v, err = p.list('[', ']')
	case '(':
		v, err = p.list('(', ')')
	case '{':
		v, err = p.mapping()
	case 0:
		return v, p.errorf("empty input")
	default:
		return v, p.errorf("expected '[', '(' or '{', found %q", p.peek())
	}
	if err != nil {
		return v, err
	}

	p.skipSpace()
	if p.pos < len(p.s) {
		return v, p.errorf("unexpected %q after the closing bracket", p.peek())
	}

	return v, nil
}

type voteParser struct {
	s   string
	pos int
}

func (p *voteParser) errorf(format string, args ...interface{}) error {
	return &VoteSyntaxError{Offset: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *voteParser) peek() byte {
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *voteParser) skipSpace() {
	for p.pos < len(p.s) {
		switch p.s[p.pos] {
		case ' ', '\t', '\r', '\n':
			p.pos++
		default:
			return
		}
	}
}

// next reports whether the next non-space byte is c, consuming it if so.
func (p *voteParser) next(c byte) bool {
	p.skipSpace()
	if p.peek() == c {
		p.pos++
		return true
	}
	return false
}

// items parses comma-separated items up to the closing byte, which is
// consumed.
func (p *voteParser) items(open, close byte, item func() error) error {
	if !p.next(open) {
		return p.errorf("expected %q", open)
	}
	if p.next(close) {
		return nil
	}
	for {
		if err := item(); err != nil {
			return err
		}
		if p.next(close) {
			return nil
		}
		if !p.next(',') {
			if p.peek() == 0 {
				return p.errorf("missing %q", close)
			}
			return p.errorf("expected ',' or %q, found %q", close, p.peek())
		}
		if p.next(close) {
			return nil
		}
	}
}

func (p *voteParser) list(open, close byte) (VoteValue, error) {
	v := VoteValue{Values: []float64{}}
	err := p.items(open, close, func() error {
		x, err := p.number()
		v.Values = append(v.Values, x)
		return err
	})
	return v, err
}

func (p *voteParser) mapping() (VoteValue, error) {
	v := VoteValue{Keyed: true, Keys: []string{}, Values: []float64{}}
	pos := make(map[string]int)
	err := p.items('{', '}', func() error {
		key, err := p.key()
		if err != nil {
			return err
		}
		if !p.next(':') {
			return p.errorf("expected ':' after key %q", key)
		}
		x, err := p.number()
		if err != nil {
			return err
		}
		if i, ok := pos[key]; ok {
			v.Values[i] = x
			return nil
		}
		pos[key] = len(v.Keys)
		v.Keys = append(v.Keys, key)
		v.Values = append(v.Values, x)
		return nil
	})
	return v, err
}

func (p *voteParser) key() (string, error) {
	p.skipSpace()
	switch q := p.peek(); q {
	case '\'', '"':
		return p.quoted(q)
	}

	start := p.pos
	tok := p.token()
	n, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		p.pos = start
		return "", p.errorf("expected a quoted string or integer key")
	}
	return strconv.FormatInt(n, 10), nil
}

func (p *voteParser) quoted(q byte) (string, error) {
	start := p.pos
	p.pos++

	var b strings.Builder
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		switch {
		case c == q:
			p.pos++
			return b.String(), nil
		case c == '\\':
			p.pos++
			if p.pos >= len(p.s) {
				break
			}
			switch e := p.s[p.pos]; e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '\\', '\'', '"':
				b.WriteByte(e)
			default:
				b.WriteByte('\\')
				b.WriteByte(e)
			}
			p.pos++
		case c == '\n':
			return "", p.errorf("newline in quoted key")
		default:
			b.WriteByte(c)
			p.pos++
		}
	}

	p.pos = start
	return "", p.errorf("unterminated string")
}

// token consumes a run of bytes that can make up a number or keyword.
func (p *voteParser) token() string {
	p.skipSpace()
	start := p.pos
	if c := p.peek(); c == '+' || c == '-' {
		p.pos++
	}
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '.':
			p.pos++
		case (c == '+' || c == '-') && (p.s[p.pos-1] == 'e' || p.s[p.pos-1] == 'E'):
			p.pos++
		default:
			return p.s[start:p.pos]
		}
	}
	return p.s[start:p.pos]
}

func (p *voteParser) number() (float64, error) {
	p.skipSpace()
	start := p.pos
	tok := p.token()

	sign := 1.0
	word := tok
	if strings.HasPrefix(word, "-") {
		sign, word = -1, word[1:]
	} else if strings.HasPrefix(word, "+") {
		word = word[1:]
	}

	switch word {
	case "True":
		return sign, nil
	case "False":
		return 0, nil
	case "nan", "NaN":
		return math.NaN(), nil
	case "inf", "Inf", "infinity", "Infinity":
		return math.Inf(int(sign)), nil
	case "":
		p.pos = start
		if p.peek() == 0 {
			return 0, p.errorf("unexpected end of input, expected a number")
		}
		return 0, p.errorf("expected a number, found %q", p.peek())
	}

	// Only plain decimal literals; ParseFloat would also take hex and words.
	if c := word[0]; !(c >= '0' && c <= '9' || c == '.') || strings.ContainsAny(word, "xXpP") {
		p.pos = start
		return 0, p.errorf("invalid number %q", tok)
	}
	x, err := strconv.ParseFloat(word, 64)
	if err != nil {
		p.pos = start
		return 0, p.errorf("invalid number %q", tok)
	}

	return sign * x, nil
}

// Votes holds every cell's vote distribution as a table. Lists give columns
// "0", "1", ...; mappings give one column per key in order of first
// appearance. Values a cell lacks, and NaN votes, are null.
type Votes struct {
	Index   []int64
	Columns []string
	Keyed   bool

	// Values is indexed by row and then column.
	Values [][]null.Float
}

// Len is the number of rows.
func (v *Votes) Len() int {
	return len(v.Index)
}

// Row returns the votes of the cell with the given id.
func (v *Votes) Row(id int64) ([]null.Float, bool) {
	i := sort.Search(len(v.Index), func(i int) bool { return v.Index[i] >= id })
	if i < len(v.Index) && v.Index[i] == id {
		return v.Values[i], true
	}
	return nil, false
}

// ReadVotes reads lines of the form <cell id>,<votes>, where <votes> is parsed
// by ParseVotes. Blank lines are skipped. Rows are sorted by cell id. Lists and
// mappings cannot be mixed within one file.
func ReadVotes(r io.Reader) (*Votes, error) {
	type parsed struct {
		id   int64
		vote VoteValue
	}

	var rows []parsed
	seen := make(map[int64]int)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxVoteLine)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		idText, voteText, ok := strings.Cut(text, ",")
		if !ok {
			return nil, fmt.Errorf("line %d: no comma after the cell id", line)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(idText), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: cell id %q is not an integer", line, idText)
		}
		if prev, dup := seen[id]; dup {
			return nil, fmt.Errorf("line %d: cell id %d already appeared on line %d", line, id, prev)
		}
		seen[id] = line

		vote, err := ParseVotes(voteText)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rows) > 0 && rows[0].vote.Keyed != vote.Keyed {
			return nil, fmt.Errorf("line %d: lists and mappings of votes are mixed", line)
		}

		rows = append(rows, parsed{id: id, vote: vote})
	}
	if err := scanner.Err(); err != nil {
		return nil, pfx.Err(err)
	}

	out := &Votes{Index: make([]int64, len(rows)), Values: make([][]null.Float, len(rows))}
	if len(rows) > 0 {
		out.Keyed = rows[0].vote.Keyed
	}

	// Column order follows the file, not the sorted ids.
	colOf := make(map[string]int)
	for _, row := range rows {
		for k := range row.vote.Values {
			name := voteColumn(row.vote, k)
			if _, ok := colOf[name]; !ok {
				colOf[name] = len(out.Columns)
				out.Columns = append(out.Columns, name)
			}
		}
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })

	for i, row := range rows {
		out.Index[i] = row.id
		values := make([]null.Float, len(out.Columns))
		for k, x := range row.vote.Values {
			if math.IsNaN(x) {
				continue
			}
			values[colOf[voteColumn(row.vote, k)]] = null.FloatFrom(x)
		}
		out.Values[i] = values
	}

	return out, nil
}

func voteColumn(v VoteValue, k int) string {
	if v.Keyed {
		return v.Keys[k]
	}
	return strconv.Itoa(k)
}
