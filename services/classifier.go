package services

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"outcode-retriever/models"
	"outcode-retriever/utils"
)

//go:embed vocabulary.yaml
var defaultVocabulary []byte

// Failure reasons recorded in an Issue.
const (
	ReasonIgnoredType = "Ignored building type"
	ReasonUnknownType = "Unknown building type"
	ReasonBadRecord   = "Malformed record"
)

var (
	saleSuffixRegexp = regexp.MustCompile(`(?i) (for sale|to rent).*$`)
	bedroomRegexp    = regexp.MustCompile(`(?i)[0-9]* bedroom *`)
	retirementRegexp = regexp.MustCompile(`(?i)retirement`)
	studioRegexp     = regexp.MustCompile(`(?i)studio`)
	houseShareRegexp = regexp.MustCompile(`(?i)house share`)
	// billsRegexp is checked against its context by inclusiveBills.
	billsRegexp = regexp.MustCompile(`(?i)bills inclu[^ ]*( +)`)
)

// Rule maps a phrase found in a type description to a classification value.
type Rule struct {
	Pattern string `yaml:"pattern"`
	Value   string `yaml:"value"`
}

// Vocabulary holds the ordered rule lists the classifier runs.
type Vocabulary struct {
	Situations    []Rule   `yaml:"situations"`
	BuildingTypes []Rule   `yaml:"building_types"`
	NotProperty   []string `yaml:"not_property"`
}

// DefaultVocabulary returns the built-in rules.
func DefaultVocabulary() (*Vocabulary, error) {
	return ParseVocabulary(defaultVocabulary)
}

// LoadVocabulary reads rules from a YAML file. An empty path yields the
// built-in rules.
func LoadVocabulary(path string) (*Vocabulary, error) {
	if path == "" {
		return DefaultVocabulary()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	return ParseVocabulary(data)
}

func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse vocabulary: %w", err)
	}
	if len(v.BuildingTypes) == 0 {
		return nil, errors.New("vocabulary has no building types")
	}
	return &v, nil
}

// phraseMatcher finds the leftmost phrase of an ordered rule list.
type phraseMatcher struct {
	re     *regexp.Regexp
	values map[string]string
}

func newPhraseMatcher(rules []Rule) (*phraseMatcher, error) {
	m := &phraseMatcher{values: make(map[string]string, len(rules))}
	alts := make([]string, 0, len(rules))
	for i, r := range rules {
		p := strings.ToLower(strings.TrimSpace(r.Pattern))
		if p == "" || r.Value == "" {
			return nil, fmt.Errorf("rule %d: pattern and value are required", i)
		}
		if _, dup := m.values[p]; dup {
			continue
		}
		m.values[p] = r.Value
		alts = append(alts, regexp.QuoteMeta(p))
	}
	if len(alts) == 0 {
		return &phraseMatcher{}, nil
	}
	re, err := regexp.Compile(`(?i)\b(` + strings.Join(alts, "|") + `)\b`)
	if err != nil {
		return nil, err
	}
	m.re = re
	return m, nil
}

// find returns the matched phrase and its value.
func (m *phraseMatcher) find(s string) (phrase, value string, ok bool) {
	if m.re == nil {
		return "", "", false
	}
	sub := m.re.FindStringSubmatch(s)
	if sub == nil {
		return "", "", false
	}
	phrase = strings.ToLower(sub[1])
	return phrase, m.values[phrase], true
}

func (m *phraseMatcher) remove(s string) string {
	if m.re == nil {
		return s
	}
	return strings.Join(strings.Fields(m.re.ReplaceAllString(s, " ")), " ")
}

// Classifier turns raw properties into Classified records.
type Classifier struct {
	situations  *phraseMatcher
	types       *phraseMatcher
	notProperty *phraseMatcher
	baseURL     string
	logger      *utils.Logger
}

// NewClassifier compiles vocab. baseURL prefixes relative property URLs.
func NewClassifier(vocab *Vocabulary, baseURL string, logger *utils.Logger) (*Classifier, error) {
	if vocab == nil {
		return nil, errors.New("classifier: nil vocabulary")
	}
	sit, err := newPhraseMatcher(vocab.Situations)
	if err != nil {
		return nil, fmt.Errorf("classifier situations: %w", err)
	}
	typ, err := newPhraseMatcher(vocab.BuildingTypes)
	if err != nil {
		return nil, fmt.Errorf("classifier building types: %w", err)
	}
	np := make([]Rule, 0, len(vocab.NotProperty))
	for _, p := range vocab.NotProperty {
		np = append(np, Rule{Pattern: p, Value: p})
	}
	notProp, err := newPhraseMatcher(np)
	if err != nil {
		return nil, fmt.Errorf("classifier non-property markers: %w", err)
	}
	if logger == nil {
		logger = utils.NewLogger()
	}
	return &Classifier{situations: sit, types: typ, notProperty: notProp, baseURL: baseURL, logger: logger}, nil
}

// Classify derives the normalised record for p. A non-empty Issue means the
// record must not be accepted; the Classified value is still returned for
// inspection.
func (c *Classifier) Classify(p *models.Property, kind models.ListingKind) (*models.Classified, models.Issue) {
	issue := models.Issue{}
	out := &models.Classified{
		URL:          p.URL(c.baseURL),
		PropertyType: kind,
		Featured:     p.FeaturedProperty,
		Status:       p.DisplayStatus,
	}

	desc := saleSuffixRegexp.ReplaceAllString(p.PropertyTypeFullDescription, "")
	desc = strings.TrimSpace(bedroomRegexp.ReplaceAllString(desc, ""))

	out.IsRetirement = retirementRegexp.MatchString(desc)

	if studioRegexp.MatchString(desc) {
		out.NBed = 1
	} else if p.Bedrooms != nil {
		out.NBed = *p.Bedrooms
	} else {
		issue[models.IssueReason] = ReasonBadRecord
		issue[models.IssueError] = "missing bedrooms"
	}

	if _, v, ok := c.situations.find(desc); ok {
		out.BuildingSituation = v
		desc = c.situations.remove(desc)
	}

	if marker, _, ok := c.notProperty.find(desc); ok {
		issue[models.IssueFailed] = "true"
		issue[models.IssueReason] = ReasonIgnoredType
		issue[models.IssueBuildingType] = marker
	} else if _, v, ok := c.types.find(desc); ok {
		out.BuildingType = v
		if v == models.BuildingTypeFlat {
			out.BuildingSituation = models.SituationFlat
		}
	} else {
		issue[models.IssueFailed] = "true"
		issue[models.IssueReason] = ReasonUnknownType
		issue[models.IssueBuildingType] = desc
	}

	if p.Customer != nil {
		out.AgentName = p.Customer.BrandTradingName
		out.AgentAttribute = p.Customer.BranchName
	}
	out.AddressString = p.DisplayAddress
	if p.Location != nil {
		out.Lat, out.Lon = p.Location.Latitude, p.Location.Longitude
	} else {
		issue[models.IssueError] = appendDetail(issue[models.IssueError], "missing location")
	}
	if p.Price != nil {
		out.AskingPrice = p.Price.Amount
	} else {
		issue[models.IssueError] = appendDetail(issue[models.IssueError], "missing price")
	}
	if _, ok := issue[models.IssueError]; ok {
		if _, set := issue[models.IssueReason]; !set {
			issue[models.IssueReason] = ReasonBadRecord
		}
	}

	if kind == models.ToRent {
		if p.Price != nil {
			out.PaymentFrequency = p.Price.Frequency
		}
		out.IsHouseShare = houseShareRegexp.MatchString(p.PropertySubType)
		out.InclusiveBills = inclusiveBills(p.Summary)
	}

	return out, issue
}

func appendDetail(existing, detail string) string {
	if existing == "" {
		return detail
	}
	return existing + "; " + detail
}

// inclusiveBills reports whether summary mentions bills being included,
// ignoring "part bills included" and "bills included for ...".
func inclusiveBills(summary string) bool {
	lower := strings.ToLower(summary)
	for _, loc := range billsRegexp.FindAllStringSubmatchIndex(lower, -1) {
		if strings.HasSuffix(lower[:loc[0]], "part ") {
			continue
		}
		// With more than one trailing space the match can give one back, so
		// "for" no longer follows it directly.
		if loc[3]-loc[2] > 1 || !strings.HasPrefix(lower[loc[1]:], "for") {
			return true
		}
	}
	return false
}

// ClassifyPage classifies every property of a page. Accepted records are
// returned in page order; rejected ones are keyed by URL in issues.
func (c *Classifier) ClassifyPage(props []*models.Property, kind models.ListingKind) ([]*models.Classified, map[string]models.Issue) {
	accepted := make([]*models.Classified, 0, len(props))
	issues := make(map[string]models.Issue)

	for _, p := range props {
		if p == nil {
			continue
		}
		rec, issue := c.classifySafe(p, kind)
		if len(issue) > 0 {
			issues[p.URL(c.baseURL)] = issue
			continue
		}
		accepted = append(accepted, rec)
	}

	c.logger.Debug("[classifier] Classified %d → %d accepted (%d issues)",
		len(props), len(accepted), len(issues))
	return accepted, issues
}

func (c *Classifier) classifySafe(p *models.Property, kind models.ListingKind) (rec *models.Classified, issue models.Issue) {
	defer func() {
		if r := recover(); r != nil {
			rec = nil
			issue = models.Issue{
				models.IssueReason: ReasonBadRecord,
				models.IssueError:  fmt.Sprint(r),
			}
		}
	}()
	return c.Classify(p, kind)
}
