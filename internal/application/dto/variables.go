package dto

type FetchVariablesCommand struct {
	Completion func(delivered bool)
}

type GetVariablesQuery struct {
	Names []string
}

type VariableOutput struct {
	Name       string `json:"name"`
	Defined    bool   `json:"defined"`
	Value      string `json:"value,omitempty"`
	CampaignID string `json:"campaign_id,omitempty"`
	ShortenID  string `json:"shorten_id,omitempty"`
}

type GetVariablesOutput struct {
	Variables []VariableOutput `json:"variables"`
}
