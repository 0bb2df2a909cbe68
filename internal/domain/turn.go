package domain

// Choice is one discrete option offered to the user: a stable token, a
// locale-resolved label and a 1-based display rank.
type Choice struct {
	Token string `json:"token"`
	Label string `json:"label"`
	Rank  int    `json:"rank"`
}

// TurnInput is the inbound event of one turn: free text or a pressed button,
// never both.
type TurnInput struct {
	Text     string `json:"text,omitempty"`
	ButtonID string `json:"buttonId,omitempty"`
}

// IsButton reports whether the input is a button press.
func (in TurnInput) IsButton() bool {
	return in.ButtonID != ""
}

// TurnResponse is what one completed turn hands back to the request layer.
type TurnResponse struct {
	SessionID      string   `json:"sessionId"`
	ConversationID string   `json:"conversationId,omitempty"`
	Stage          string   `json:"stage"`
	Reply          string   `json:"reply"`
	Choices        []Choice `json:"choices"`
}
