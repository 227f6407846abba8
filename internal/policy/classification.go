package policy

import "fmt"

// Classification is the ordered sensitivity level of a document or chunk.
// The zero value is Public, so a missing or unparseable level never grants
// access to anything above the lowest tier.
type Classification int

const (
	Public Classification = iota
	Internal
	Confidential
)

var classificationNames = map[Classification]string{
	Public:       "public",
	Internal:     "internal",
	Confidential: "confidential",
}

func (c Classification) String() string {
	if name, ok := classificationNames[c]; ok {
		return name
	}
	return "public"
}

// ParseClassification maps a level name to a Classification.
// Unknown names are an error — callers at ingestion/config time must
// reject them rather than guess.
func ParseClassification(s string) (Classification, error) {
	switch s {
	case "public":
		return Public, nil
	case "internal":
		return Internal, nil
	case "confidential":
		return Confidential, nil
	}
	return Public, fmt.Errorf("unknown classification %q", s)
}

func (c Classification) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Classification) UnmarshalText(text []byte) error {
	parsed, err := ParseClassification(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
