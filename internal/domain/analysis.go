package domain

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

type LevelAnalysis struct {
	RecommendedLevel    int               `json:"recommended_level"`
	HMRequestedLevel    int               `json:"hm_requested_level"`
	LevelMatch          bool              `json:"level_match"`
	TensionFlag         bool              `json:"tension_flag"`
	Reasoning           string            `json:"reasoning"`
	ScopeAssessment     string            `json:"scope_assessment"`
	ImpactAssessment    string            `json:"impact_assessment"`
	PeopleAssessment    string            `json:"people_assessment"`
	AutonomyAssessment  string            `json:"autonomy_assessment"`
	AmbiguityAssessment string            `json:"ambiguity_assessment"`
	AttributeFit        map[string]string `json:"attribute_fit,omitempty"`
}

type Tension struct {
	ID                  string   `json:"id"`
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	Severity            Severity `json:"severity" enum:"high,medium,low"`
	ProbingQuestion     string   `json:"probing_question"`
	Source              string   `json:"source"`
	RespondentsInvolved []string `json:"respondents_involved,omitempty"`
}

type TAPBrief struct {
	Summary               string   `json:"summary"`
	PriorityQuestions     []string `json:"priority_questions"`
	WatchItems            []string `json:"watch_items"`
	LevelSignal           string   `json:"level_signal"`
	CandidateProfileNotes string   `json:"candidate_profile_notes"`
}

type JDDraft struct {
	JobTitle            string   `json:"job_title"`
	LevelLabel          string   `json:"level_label"`
	AboutTheRole        string   `json:"about_the_role"`
	WhatYouWillDo       []string `json:"what_you_will_do"`
	WhatWeAreLookingFor []string `json:"what_we_are_looking_for"`
	NiceToHave          []string `json:"nice_to_have"`
	LocationStatement   string   `json:"location_statement"`
}

type InterviewStage struct {
	StageName          string   `json:"stage_name"`
	StageType          string   `json:"stage_type"`
	DurationMinutes    int      `json:"duration_minutes"`
	InterviewerType    string   `json:"interviewer_type"`
	FocusAreas         []string `json:"focus_areas"`
	SampleQuestions    []string `json:"sample_questions"`
	AttributesAssessed []string `json:"attributes_assessed"`
}

type InterviewPlan struct {
	Stages           []InterviewStage    `json:"stages"`
	OverallNotes     string              `json:"overall_notes"`
	AttributeMapping map[string][]string `json:"attribute_mapping,omitempty"`
}

type SourcingChannel struct {
	Channel   string `json:"channel"`
	Rationale string `json:"rationale"`
	Priority  string `json:"priority"`
}

type SourcingStrategy struct {
	Headline                string            `json:"headline"`
	TargetCompanies         []string          `json:"target_companies"`
	TargetTitles            []string          `json:"target_titles"`
	SearchStrings           []string          `json:"search_strings"`
	Channels                []SourcingChannel `json:"channels"`
	DiversityConsiderations string            `json:"diversity_considerations,omitempty"`
	OutreachAngle           string            `json:"outreach_angle"`
}

// Analysis is the first-pass model result for a hiring manager intake.
type Analysis struct {
	LevelAnalysis    LevelAnalysis     `json:"level_analysis"`
	Tensions         []Tension         `json:"tensions"`
	TAPBrief         TAPBrief          `json:"tap_brief"`
	JDDraft          *JDDraft          `json:"jd_draft,omitempty"`
	InterviewPlan    *InterviewPlan    `json:"interview_plan,omitempty"`
	SourcingStrategy *SourcingStrategy `json:"sourcing_strategy,omitempty"`
}

type LevelSpreadEntry struct {
	Respondent       string `json:"respondent"`
	RoleType         string `json:"role_type"`
	LevelPick        int    `json:"level_pick"`
	RationaleSummary string `json:"rationale_summary"`
}

// Synthesis reconciles the intake with stakeholder responses. TapPrivateBrief may carry
// confidential signal and must never be used to build SlackSummary.
type Synthesis struct {
	LevelSpread         []LevelSpreadEntry `json:"level_spread"`
	LevelConsensus      *int               `json:"level_consensus"`
	LevelDivergenceFlag bool               `json:"level_divergence_flag"`
	Tensions            []Tension          `json:"tensions"`
	ProbingQuestions    []string           `json:"probing_questions"`
	SlackSummary        string             `json:"slack_summary"`
	TapPrivateBrief     string             `json:"tap_private_brief"`
	NotionSummary       string             `json:"notion_summary"`
	JDDraft             *JDDraft           `json:"jd_draft,omitempty"`
	InterviewPlan       *InterviewPlan     `json:"interview_plan,omitempty"`
	SourcingStrategy    *SourcingStrategy  `json:"sourcing_strategy,omitempty"`
}
