package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/PuerkitoBio/goquery"
)

var ConfigNotFound = fmt.Errorf("moodle config not found in page")
var ConfigMalformed = fmt.Errorf("moodle config is malformed")
var TokenNotFound = fmt.Errorf("could not find login token")

// the object literal assigned to M.cfg is the only machine-readable JSON
// on the page, the match is deliberately non-greedy against the literal
// boundary instead of parsing the surrounding javascript
var moodleConfigRegex = regexp.MustCompile(`(?s)M\.cfg\s*=\s*(\{.*?\});`)

// Config is the per-page configuration blob Moodle embeds in a script
// tag. The sesskey may rotate between requests, a Config is only valid
// for the page that produced it.
type Config struct {
	Sesskey string      `json:"sesskey"`
	UserId  LooseString `json:"userId"`
}

func ExtractConfig(page []byte) (Config, error) {
	groups := moodleConfigRegex.FindSubmatch(page)
	if len(groups) < 2 {
		return Config{}, ConfigNotFound
	}

	var cfg Config
	err := json.Unmarshal(groups[1], &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ConfigMalformed, err)
	}
	if cfg.Sesskey == "" || cfg.UserId == "" {
		return Config{}, fmt.Errorf("%w: missing sesskey or userId", ConfigMalformed)
	}
	return cfg, nil
}

// LoginToken pulls the hidden anti-forgery field out of the login form.
func LoginToken(doc *goquery.Document) (string, error) {
	token := doc.Find("input[name=logintoken]").AttrOr("value", "")
	if token == "" {
		return "", TokenNotFound
	}
	return token, nil
}

// LooseString decodes from either a JSON string or a JSON number, the
// target site is not consistent about which one it emits.
type LooseString string

func (s *LooseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var str string
		err := json.Unmarshal(b, &str)
		if err != nil {
			return err
		}
		*s = LooseString(str)
		return nil
	}
	var num json.Number
	err := json.Unmarshal(b, &num)
	if err != nil {
		return err
	}
	*s = LooseString(num.String())
	return nil
}
