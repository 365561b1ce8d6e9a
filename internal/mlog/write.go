package mlog

import (
	"io"
	"strings"

	"github.com/dogmatiq/iago/must"
)

// String builds one log line from identifying labels, status icons and
// free-form text segments. Empty text segments are skipped; the remainder are
// separated by SeparatorIcon.
func String(
	ids []IconWithLabel,
	icons []Icon,
	text ...string,
) string {
	w := &strings.Builder{}
	write(w, ids, icons, text)
	return w.String()
}

func write(
	w io.Writer,
	ids []IconWithLabel,
	icons []Icon,
	text []string,
) {
	for _, v := range ids {
		must.WriteTo(w, v)
		must.WriteString(w, "  ")
	}

	for _, v := range icons {
		must.WriteTo(w, v)
		must.WriteString(w, " ")
	}

	n := 0
	for _, v := range text {
		if v == "" {
			continue
		}

		must.WriteString(w, " ")

		if n > 0 {
			must.WriteTo(w, SeparatorIcon)
			must.WriteString(w, " ")
		}

		must.WriteString(w, v)
		n++
	}
}
