package core

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// MaxCategoryWords bounds the category; extra words move into the comment.
const MaxCategoryWords = 3

var amountPattern = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

var (
	ErrEmptyInput        = errors.New("empty input")
	ErrNoAmount          = errors.New("no amount found")
	ErrNoCategory        = errors.New("no category before amount")
	ErrUnparsableAmount  = errors.New("amount is not a number")
	ErrNonPositiveAmount = errors.New("amount must be positive")
)

// ParseError reports why a message could not become an expense. Kind is one
// of the sentinel errors above and is matched by errors.Is.
type ParseError struct {
	Kind  error
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %v", e.Input, e.Kind)
}

func (e *ParseError) Unwrap() error { return e.Kind }

// Parsed is the result of a successful parse, before it is stamped and stored.
type Parsed struct {
	Category string
	Amount   decimal.Decimal
	Comment  string
}

// Normalizer rewrites a raw category into its canonical spelling.
type Normalizer interface {
	Normalize(category string) string
}

// UkrainianConnectives are kept lowercase inside multi-word categories.
var UkrainianConnectives = []string{"на", "до", "в", "з", "і", "та", "для", "по"}

// TitleNormalizer title-cases every word and lowercases connectives that
// are not the first word.
type TitleNormalizer struct {
	Lowercase []string
}

func (n TitleNormalizer) Normalize(category string) string {
	words := strings.Fields(category)
	for i, w := range words {
		if i > 0 && n.isConnective(w) {
			words[i] = strings.ToLower(w)
			continue
		}
		words[i] = titleWord(w)
	}
	return strings.Join(words, " ")
}

func (n TitleNormalizer) isConnective(w string) bool {
	for _, c := range n.Lowercase {
		if strings.EqualFold(w, c) {
			return true
		}
	}
	return false
}

func titleWord(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	if r == utf8.RuneError {
		return w
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
}

// NormalizerFor maps a CATEGORY_LOCALE value to a normalizer. Unknown
// locales title-case without connective handling.
func NormalizerFor(locale string) Normalizer {
	switch strings.ToLower(strings.TrimSpace(locale)) {
	case "uk", "ua", "":
		return TitleNormalizer{Lowercase: UkrainianConnectives}
	default:
		return TitleNormalizer{}
	}
}

type Parser struct {
	normalizer Normalizer
}

func NewParser(n Normalizer) *Parser {
	if n == nil {
		n = TitleNormalizer{Lowercase: UkrainianConnectives}
	}
	return &Parser{normalizer: n}
}

// Parse splits "Category Amount Comment" text around the first number.
//
// Examples:
//
//	"Їжа 250 Обід"                 -> Їжа, 250, "Обід"
//	"ремонт машини на дорозі 1500" -> "Ремонт Машини на", 1500, "дорозі"
//	"Їжа -50"                      -> ErrNonPositiveAmount
//
// Only the first number is the amount; later numbers stay in the comment.
func (p *Parser) Parse(text string) (Parsed, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Parsed{}, &ParseError{Kind: ErrEmptyInput, Input: text}
	}

	loc := amountPattern.FindStringIndex(text)
	if loc == nil {
		return Parsed{}, &ParseError{Kind: ErrNoAmount, Input: text}
	}
	start, end := loc[0], loc[1]
	number := text[start:end]

	// A minus directly before the digits belongs to the amount, not the category.
	negative := start > 0 && text[start-1] == '-' && (start == 1 || isSpaceByte(text[start-2]))
	categoryEnd := start
	if negative {
		categoryEnd--
	}

	words := strings.Fields(strings.TrimRightFunc(text[:categoryEnd], isSeparator))
	comment := strings.TrimSpace(text[end:])
	if len(words) > MaxCategoryWords {
		extra := strings.Join(words[MaxCategoryWords:], " ")
		words = words[:MaxCategoryWords]
		if comment != "" {
			comment = extra + " " + comment
		} else {
			comment = extra
		}
	}
	if len(words) == 0 {
		return Parsed{}, &ParseError{Kind: ErrNoCategory, Input: text}
	}
	category := p.normalizer.Normalize(strings.Join(words, " "))

	amount, err := ParseAmount(number)
	if err != nil {
		return Parsed{}, &ParseError{Kind: ErrUnparsableAmount, Input: text}
	}
	if negative {
		amount = amount.Neg()
	}
	if !amount.IsPositive() {
		return Parsed{}, &ParseError{Kind: ErrNonPositiveAmount, Input: text}
	}

	return Parsed{Category: category, Amount: amount, Comment: comment}, nil
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// isSeparator reports dashes and spaces left between a category and its
// amount, as in "Їжа - 50" or "Їжа–50".
func isSeparator(r rune) bool {
	switch r {
	case '-', '\u2013', '\u2014', '\u2212':
		return true
	}
	return unicode.IsSpace(r)
}
