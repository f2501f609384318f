package termdb

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/MikeSquared-Agency/SaddleSum/internal/apperr"
)

const maxLineSize = 4 * 1024 * 1024

// LoadGMT reads tab separated "term_id description entity..." lines into
// namespace. Terms already present are skipped. It returns the number of
// terms added.
func (d *Database) LoadGMT(r io.Reader, namespace string) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	added := 0
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r\n")
		if strings.TrimSpace(text) == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) < 3 {
			return added, fmt.Errorf("invalid gmt format (line %d, field #%d): %w",
				line, len(fields), apperr.ErrInvalidInput)
		}
		for k, f := range fields[2:] {
			if f == "" {
				return added, fmt.Errorf("empty entity field (line %d, field #%d): %w",
					line, k+3, apperr.ErrInvalidInput)
			}
		}
		ok, err := d.AddTerm(namespace, fields[0], fields[1], fields[2:])
		if err != nil {
			return added, fmt.Errorf("line %d: %w", line, err)
		}
		if ok {
			added++
		}
	}
	if err := sc.Err(); err != nil {
		return added, fmt.Errorf("reading gmt: %w", err)
	}
	return added, nil
}

// LoadAliases reads whitespace separated "symbol alias..." lines and
// returns the number of alias entries read.
func (d *Database) LoadAliases(r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	n := 0
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		for _, a := range fields[1:] {
			d.AddAlias(a, fields[0])
			n++
		}
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("reading aliases: %w", err)
	}
	return n, nil
}
