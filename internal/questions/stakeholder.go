package questions

import (
	"strings"

	"tapline/internal/domain"
)

// RelationshipID is the id of the branching question on the stakeholder form.
const RelationshipID = "relationship"

type relationship struct {
	key       string
	option    string
	followUps []Question
}

var relationships = []relationship{
	{
		key:    "cross_functional_partner",
		option: "Cross-functional partner — I work closely with this team but sit in a different function",
		followUps: []Question{
			{ID: "collaboration_expectations", Label: "How will this person need to work with your team day-to-day?", Probe: "Think about handoffs, shared projects, or dependencies.", Kind: KindTextarea},
			{ID: "gap_you_see", Label: "What gap do you most hope this hire fills from your vantage point?", Probe: "Is there a skill, approach, or perspective missing that affects your team too?", Kind: KindTextarea},
		},
	},
	{
		key:    "key_stakeholder",
		option: "Key stakeholder — this role will directly impact my work or team",
		followUps: []Question{
			{ID: "impact_on_you", Label: "How will this hire directly impact your work or team?", Probe: "Think about what changes, improves, or becomes possible once this person is in seat.", Kind: KindTextarea},
			{ID: "what_you_need", Label: "What do you most need from this person to do your job well?", Probe: "Be direct — this is about setting the hire up for success.", Kind: KindTextarea},
		},
	},
	{
		key:    "department_lead",
		option: "Department lead — I lead the department or org this role sits within",
		followUps: []Question{
			{ID: "strategic_context", Label: "How does this hire fit into the broader org strategy?", Probe: "What's the business problem this role is solving over the next 12–18 months?", Kind: KindTextarea},
			{ID: "budget_context", Label: "Is there any headcount or budget context we should know?", Probe: "Any constraints on comp level, timeline, or headcount classification?", Kind: KindTextarea},
		},
	},
	{
		key:    "dri",
		option: "DRI — I am directly responsible for the project or outcome this role supports",
		followUps: []Question{
			{ID: "non_negotiables", Label: "What are your absolute non-negotiables for this hire?", Probe: "If a candidate is missing this, it's an automatic no — regardless of everything else.", Kind: KindTextarea},
			{ID: "tradeoffs", Label: "What tradeoffs are you willing to make?", Probe: "e.g. less experience for higher potential, domain expertise over Flex attributes, etc.", Kind: KindTextarea},
		},
	},
}

var stakeholderCore = []Question{
	{ID: "level_expectation", Label: "What level do you expect this person to be hired at?", Kind: KindSelect, Options: levelOptions},
	{ID: "level_rationale", Label: "Walk us through your reasoning. Why that level?", Probe: "What about scope, impact, or the team's needs led you there?", Kind: KindTextarea},
	{ID: "success_definition", Label: "What does success look like from your vantage point at 6 months?", Probe: "Be specific — what will you see them doing, influencing, or delivering?", Kind: KindTextarea},
}

// RelationshipOptions returns the selectable answers of the relationship question.
func RelationshipOptions() []string {
	out := make([]string, len(relationships))
	for i, r := range relationships {
		out[i] = r.option
	}
	return out
}

// RelationshipQuestion returns the branching question.
func RelationshipQuestion() Question {
	return Question{
		ID:      RelationshipID,
		Label:   "What is your relationship to this role?",
		Probe:   "This helps us understand your perspective and ask the most relevant follow-up questions.",
		Kind:    KindSelect,
		Options: RelationshipOptions(),
	}
}

// FollowUps returns the two questions unlocked by a relationship answer, matched
// on the option text or its short key. Unknown answers unlock nothing.
func FollowUps(answer string) []Question {
	a := strings.TrimSpace(answer)
	if a == "" {
		return nil
	}
	for _, r := range relationships {
		if a == r.option || strings.EqualFold(a, r.key) {
			return cloneAll(r.followUps)
		}
	}
	return nil
}

// ForStakeholder returns the relationship question, its follow-ups and the core block.
func ForStakeholder(relationshipAnswer string) []Question {
	return cloneAll([]Question{RelationshipQuestion()}, FollowUps(relationshipAnswer), stakeholderCore)
}

// ForRespondent dispatches on the invite role; answers may carry the relationship pick.
func ForRespondent(role domain.RoleType, answers domain.Answers) []Question {
	if role == domain.RoleHiringManager {
		return ForHiringManager()
	}
	return ForStakeholder(answers[RelationshipID])
}
