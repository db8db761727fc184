package entityrepo

import (
	"reflect"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// namespaceOf derives the cache and event namespace of an entity type:
// the plural snake case name of the type with pointers unwrapped.
func namespaceOf(t reflect.Type) string {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" {
		return "entities"
	}
	return inflection.Plural(toSnake(t.Name()))
}

// toSnake lower cases s and separates words with underscores. Anything that
// is not a letter or digit, such as the brackets of generic type names,
// becomes a separator.
func toSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + 4)

	sep := func() {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "_") {
			b.WriteByte('_')
		}
	}

	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					sep()
				}
			}
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsLower(r), unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			sep()
		}
	}

	return strings.Trim(b.String(), "_")
}
