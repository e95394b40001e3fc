// Package questions resolves the ordered question lists shown to hiring
// managers and stakeholders. Every function is pure and returns fresh slices.
package questions

import (
	"sort"
	"strings"

	"tapline/internal/domain"
)

type Kind string

const (
	KindText     Kind = "text"
	KindTextarea Kind = "textarea"
	KindSelect   Kind = "select"
)

// NotSpecified is stored for skipped optional questions.
const NotSpecified = "Not specified"

type Question struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Probe    string   `json:"probe,omitempty"`
	Kind     Kind     `json:"type" enum:"text,textarea,select"`
	Options  []string `json:"options,omitempty"`
	Optional bool     `json:"optional,omitempty"`
}

func (q Question) clone() Question {
	if q.Options != nil {
		q.Options = append([]string(nil), q.Options...)
	}
	return q
}

func cloneAll(qs ...[]Question) []Question {
	var n int
	for _, q := range qs {
		n += len(q)
	}
	out := make([]Question, 0, n)
	for _, set := range qs {
		for _, q := range set {
			out = append(out, q.clone())
		}
	}
	return out
}

var trackFamilies = map[domain.Track][]string{
	domain.TrackProduct:     {"Core Product", "Design"},
	domain.TrackEngineering: {"Software Engineering", "Data Engineering", "Analytics", "Machine Learning", "Data Science", "Information Technology", "Security Engineering", "Quality Assurance"},
	domain.TrackMarketing:   {"Brand Marketing", "Product Marketing", "Creative", "Social Media", "Growth Marketing"},
	domain.TrackRevenue:     {"Business Development", "Partner Success", "Account Executive", "Sales Development", "Sales Engineering", "Revenue Operations", "Partner Implementation"},
	domain.TrackGA:          {"Talent Acquisition", "People Ops", "Customer Success", "Operations", "Legal", "Strategic Finance / CM&T", "Accounting", "Compliance", "Credit Risk", "Risk Operations", "Office Management", "Project Management", "Strategy"},
}

// TrackOrder is the display order of tracks.
var TrackOrder = []domain.Track{domain.TrackProduct, domain.TrackEngineering, domain.TrackMarketing, domain.TrackRevenue, domain.TrackGA}

var trackLabels = map[domain.Track]string{
	domain.TrackProduct:     "Product",
	domain.TrackEngineering: "Engineering",
	domain.TrackMarketing:   "Marketing",
	domain.TrackRevenue:     "Revenue",
	domain.TrackGA:          "G&A",
}

func TrackLabel(t domain.Track) string {
	if l, ok := trackLabels[t]; ok {
		return l
	}
	return string(t)
}

// DetectTrack maps a job family to its track; unknown families fall back to ga.
func DetectTrack(jobFamily string) domain.Track {
	jf := strings.TrimSpace(jobFamily)
	for _, t := range TrackOrder {
		for _, fam := range trackFamilies[t] {
			if strings.EqualFold(fam, jf) {
				return t
			}
		}
	}
	return domain.TrackGA
}

// JobFamilies returns the families of a track sorted by name.
func JobFamilies(t domain.Track) []string {
	out := append([]string(nil), trackFamilies[t]...)
	sort.Strings(out)
	return out
}

var levelOptions = []string{"L3", "L4", "L5", "L6", "L7", "L8", "L9"}

var locationOptions = []string{
	"New York, NY — Tier 1 (HQ)",
	"San Francisco / Bay Area — Tier 1",
	"Salt Lake City, UT — Tier 3",
	"Remote — Engineering / Data Science / AI/ML / L4+ Field Sales",
	"Remote — Exception requested (L7+ only)",
	"Multiple locations",
}

var icVsManagerOptions = []string{
	"Primarily IC — mostly in the weeds",
	"Player/coach — significant IC + managing others",
	"Primarily managerial — IC in critical spots only",
	"Full people leader — IC is rare",
}

var roleSetup = []Question{
	{ID: "role_title", Label: "What is the working title for this role?", Probe: "e.g. Senior Product Manager, Staff Engineer, L6 Talent Partner — use the title you'd post externally.", Kind: KindText},
	{ID: "hiring_id", Label: "What is the Hiring ID for this role?", Probe: "This is the ID from your approved Jira headcount request. e.g. HC-2024-042", Kind: KindText, Optional: true},
	{ID: "reports_to", Label: "Who does this role report to?", Probe: "First and last name of the direct manager.", Kind: KindText},
	{ID: "tap_name", Label: "What's your name?", Probe: "So stakeholders know who's reaching out.", Kind: KindText},
}

var orgAreaProduct = Question{ID: "org_area_product", Label: "Which part of the product org is this role part of?", Probe: "e.g. Consumer, Platform, Partner — where does this team sit?", Kind: KindText}

var orgAreaGA = Question{ID: "org_area_ga", Label: "Which part of the org does this role support?", Probe: "e.g. Engineering, GTM, People — who are the primary internal stakeholders?", Kind: KindText}

var closing = []Question{
	{ID: "people_management", Label: "Does this person need to manage people?", Probe: "If yes — how many reports, how senior, and how much management experience is truly needed?", Kind: KindText},
	{ID: "ic_vs_manager", Label: "Is this role hands-on IC, purely managerial, or a player/coach?", Probe: "Almost all roles have some IC work — what does that look like here?", Kind: KindSelect, Options: icVsManagerOptions},
	{ID: "success", Label: "What does success look like at 6 and 12 months?", Probe: "Be specific. What will this person have shipped, influenced, or changed?", Kind: KindTextarea},
	{ID: "failure", Label: "What does failure look like?", Probe: "What would cause this hire not to work out? This often reveals the real requirements.", Kind: KindTextarea},
	{ID: "backfill", Label: "Is this a backfill or a new role?", Probe: "If backfill — what did you learn? If new — who owned this scope before?", Kind: KindText},
	{ID: "competitors", Label: "Any specific companies, backgrounds, or profiles we should target?", Kind: KindText, Optional: true},
	{ID: "location", Label: "Where can this role be based?", Probe: "Per Flex's hybrid policy, remote is available for Engineering, Data Science, AI/ML, and L4+ field sales only.", Kind: KindSelect, Options: locationOptions},
	{ID: "hm_level_pick", Label: "What level do you believe this role should be?", Probe: "Pick the level you feel most convicted about — we'll compare this to the career ladder.", Kind: KindSelect, Options: levelOptions},
	{ID: "hm_level_rationale", Label: "Walk us through your reasoning. Why that level?", Probe: "What about scope, impact, or skills needed led you there?", Kind: KindTextarea},
	{ID: "search_context", Label: "Any context on this search we should know going in?", Probe: "Timeline pressure, internal candidates, org sensitivity, team dynamics — anything a TAP should know before the kickoff call.", Kind: KindTextarea, Optional: true},
}

var trackBlocks = map[domain.Track][]Question{
	domain.TrackProduct: {
		{ID: "zero_to_one", Label: "Is this a 0-to-1 build?", Probe: "Building something net new, or evolving/scaling something that exists?", Kind: KindSelect, Options: []string{"Yes — fully net new", "Mostly new, some foundation exists", "Scaling/evolving an existing product", "Primarily maintenance and optimization"}},
		{ID: "vision_vs_execution", Label: "Do we know the solution — or do we need someone to define both vision AND execution?", Probe: "This is one of the biggest leveling signals.", Kind: KindSelect, Options: []string{"We know the solution — need strong execution", "Rough direction exists — need someone to sharpen and build", "We have the problem — need someone to define solution and strategy", "We don't fully know the problem or solution — need someone to define both"}},
		{ID: "specialization", Label: "How niche or specialized is this role?", Probe: "Could a talented product athlete ramp in 3–6 months? Or is prior experience critical?", Kind: KindSelect, Options: []string{"Agile product athlete can ramp — domain is learnable", "Some domain familiarity helpful but not required", "Prior domain experience strongly preferred", "Prior experience with this exact problem set is critical"}},
		{ID: "domain_experience", Label: "How much fintech or payments experience is needed?", Kind: KindSelect, Options: []string{"Not required — great product sense is enough", "Helpful but not a dealbreaker", "Preferred — fintech context accelerates ramp", "Required — regulatory/compliance/partner complexity demands it"}},
	},
	domain.TrackEngineering: {
		{ID: "greenfield", Label: "Is this a greenfield build or maintaining/extending existing systems?", Kind: KindSelect, Options: []string{"Greenfield — net new system or platform", "Mostly new with some existing foundation", "Extending / evolving existing systems", "Primarily maintaining and optimizing existing systems"}},
		{ID: "tech_scope", Label: "How would you describe the technical scope of this role?", Kind: KindSelect, Options: []string{"Deep specialist — expert in a narrow domain", "Full-stack contributor — breadth across the system", "Systems architect — designs across platforms", "Technical leader — sets direction, enables others"}},
		{ID: "cross_functional_scope", Label: "How cross-functional is this role?", Kind: KindSelect, Options: []string{"Primarily within the engineering team", "Works closely with 1–2 adjacent teams", "Significant cross-functional coordination required", "Enterprise-wide — interfaces across the entire org"}},
		{ID: "domain_experience", Label: "How much fintech or payments domain experience is needed?", Kind: KindSelect, Options: []string{"Not required — strong technical fundamentals are enough", "Helpful but not a dealbreaker", "Preferred — domain context accelerates ramp", "Required — regulatory or compliance complexity demands it"}},
	},
	domain.TrackMarketing: {
		{ID: "marketing_motion", Label: "Is this role primarily building the marketing function/strategy, or executing within an established one?", Probe: "This is the key leveling signal for marketing roles.", Kind: KindSelect, Options: []string{"Building — strategy and function largely undefined", "Inheriting a strategy, needs significant refinement", "Executing within a defined strategy and playbook", "Optimizing an established motion — improve and scale"}},
		{ID: "channel_scope", Label: "What is the primary scope of this role's channel or domain ownership?", Kind: KindSelect, Options: []string{"Single channel or campaign type", "Multiple channels within a function", "Full function ownership", "Cross-functional — spans brand, growth, and product marketing"}},
		{ID: "brand_vs_performance", Label: "Where does this role sit on the brand-to-performance spectrum?", Kind: KindSelect, Options: []string{"Pure brand / creative", "Mostly brand with some performance", "Balanced — brand and performance equally weighted", "Mostly performance — growth, acquisition, conversion", "Pure performance / growth marketing"}},
		{ID: "domain_experience", Label: "How much fintech or B2B SaaS marketing experience is needed?", Kind: KindSelect, Options: []string{"Not required — strong marketing fundamentals are enough", "Helpful but not a dealbreaker", "Preferred — domain context accelerates ramp", "Required — regulated industry or B2B complexity demands it"}},
	},
	domain.TrackRevenue: {
		{ID: "market_maturity", Label: "Is this role focused on a new market/segment or an existing book of business?", Probe: "This shapes whether we're hiring a builder or an optimizer.", Kind: KindSelect, Options: []string{"New market — no existing motion or pipeline", "Emerging — early signal, limited infrastructure", "Established — existing pipeline, room to grow", "Mature book — optimize and retain"}},
		{ID: "gtm_definition", Label: "How defined is the go-to-market motion this person will operate in?", Kind: KindSelect, Options: []string{"Fully defined playbook — execute within it", "Playbook exists but needs refinement", "Rough direction — significant building required", "Blank slate — define the motion from scratch"}},
		{ID: "deal_complexity", Label: "What is the nature of the deals or relationships this role manages?", Kind: KindSelect, Options: []string{"Transactional — high volume, shorter cycle", "Mixed — some complex, some transactional", "Complex — longer cycle, multi-stakeholder", "Strategic / transformational — large, long-term partnerships"}},
		{ID: "domain_experience", Label: "How much fintech or payments experience is needed?", Kind: KindSelect, Options: []string{"Not required — strong commercial instincts are enough", "Helpful but not a dealbreaker", "Preferred — domain context accelerates ramp", "Required — partner or regulatory complexity demands it"}},
	},
	domain.TrackGA: {
		{ID: "process_maturity", Label: "How mature is the process or function this person is stepping into?", Probe: "This is one of the biggest leveling signals for operational roles.", Kind: KindSelect, Options: []string{"Undefined — no process exists yet", "Nascent — early attempts, inconsistent", "Established but broken — needs a rebuild", "Functional — works, but has clear optimization opportunities", "Mature — well-documented, scalable, needs stewardship"}},
		{ID: "primary_mode", Label: "What is the primary mode of this role?", Probe: "Defining vs. optimizing vs. executing is often the clearest leveling signal for G&A.", Kind: KindSelect, Options: []string{"Defining — build the function or process from scratch", "Optimizing — inherit something and make it significantly better", "Executing — operate within established systems and processes", "Mixed — some definition, mostly optimization and execution"}},
		{ID: "cross_functional_scope", Label: "How cross-functional is this role?", Kind: KindSelect, Options: []string{"Primarily team-internal", "Works closely with 1–2 adjacent teams", "Significant cross-functional coordination required", "Enterprise-wide — interfaces across the entire org"}},
		{ID: "domain_experience", Label: "Is deep domain expertise required, or is functional excellence enough?", Probe: "e.g. TA experience in hypergrowth, CS experience in fintech", Kind: KindSelect, Options: []string{"Functional excellence is enough — domain is learnable", "Some domain familiarity is helpful", "Domain experience strongly preferred", "Deep domain expertise is critical to day one effectiveness"}},
	},
}

// TrackBlock returns the track-specific questions; unknown tracks get the ga block.
func TrackBlock(t domain.Track) []Question {
	block, ok := trackBlocks[t]
	if !ok {
		block = trackBlocks[domain.TrackGA]
	}
	return cloneAll(block)
}

// ForIntake resolves the hiring manager intake for a job family.
func ForIntake(jobFamily string) (domain.Track, []Question) {
	track := DetectTrack(jobFamily)
	orgArea := orgAreaGA
	if track == domain.TrackProduct {
		orgArea = orgAreaProduct
	}
	return track, cloneAll(roleSetup, []Question{orgArea}, trackBlocks[track], closing)
}

var hiringManagerForm = []Question{
	{ID: "org_area", Label: "Which part of the org does this role sit in?", Probe: "e.g. Consumer, Platform, Partner — where does this team live?", Kind: KindText},
	{ID: "people_management", Label: "Does this person need to manage people?", Probe: "If yes — how many reports, how senior, and how much management experience is truly needed?", Kind: KindText},
	{ID: "ic_vs_manager", Label: "Is this role hands-on IC, purely managerial, or a player/coach?", Kind: KindSelect, Options: icVsManagerOptions},
	{ID: "zero_to_one", Label: "Is this a 0-to-1 build or evolving something that exists?", Kind: KindSelect, Options: []string{"Yes — fully net new", "Mostly new, some foundation exists", "Scaling/evolving an existing product or function", "Primarily maintenance and optimization"}},
	{ID: "success", Label: "What does success look like at 6 and 12 months?", Probe: "Be specific. What will this person have shipped, influenced, or changed?", Kind: KindTextarea},
	{ID: "failure", Label: "What does failure look like?", Probe: "What would cause this hire not to work out? This often reveals the real requirements.", Kind: KindTextarea},
	{ID: "backfill", Label: "Is this a backfill or a new role?", Probe: "If backfill — what did you learn? If new — who owned this scope before?", Kind: KindText},
	{ID: "domain_experience", Label: "How much domain or industry experience is needed?", Kind: KindSelect, Options: []string{"Not required — strong fundamentals are enough", "Helpful but not a dealbreaker", "Strongly preferred", "Required — complexity demands it"}},
	{ID: "competitors", Label: "Any specific companies, backgrounds, or profiles we should target?", Kind: KindText, Optional: true},
	{ID: "location", Label: "Where can this role be based?", Kind: KindSelect, Options: locationOptions},
	{ID: "hm_level_pick", Label: "What level do you believe this role should be?", Probe: "Pick the level you feel most convicted about.", Kind: KindSelect, Options: levelOptions},
	{ID: "hm_level_rationale", Label: "Walk us through your reasoning. Why that level?", Probe: "What about scope, impact, or skills needed led you there?", Kind: KindTextarea},
}

// ForHiringManager returns the respondent form for an invite with the hiring_manager role.
func ForHiringManager() []Question {
	return cloneAll(hiringManagerForm)
}
