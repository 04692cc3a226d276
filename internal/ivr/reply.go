package ivr

// ActionKind enumerates the voice instructions a Reply can carry.
type ActionKind int

const (
	ActionSay ActionKind = iota
	ActionGatherDigits
	ActionGatherSpeech
	ActionRedirect
	ActionHangup
)

func (k ActionKind) String() string {
	switch k {
	case ActionSay:
		return "say"
	case ActionGatherDigits:
		return "gather_digits"
	case ActionGatherSpeech:
		return "gather_speech"
	case ActionRedirect:
		return "redirect"
	case ActionHangup:
		return "hangup"
	default:
		return "unknown"
	}
}

// Action is one provider-neutral voice instruction. For gathers, Text is
// spoken while input is collected and URL receives the result.
type Action struct {
	Kind      ActionKind
	Text      string
	Language  string
	Voice     string
	URL       string
	Timeout   int // seconds
	NumDigits int
}

// Reply is the ordered list of instructions answering one webhook.
type Reply struct {
	Actions []Action
}

func (r *Reply) Say(text, language, voice string) *Reply {
	r.Actions = append(r.Actions, Action{Kind: ActionSay, Text: text, Language: language, Voice: voice})
	return r
}

func (r *Reply) GatherDigits(prompt, language, action string, numDigits, timeout int) *Reply {
	r.Actions = append(r.Actions, Action{
		Kind:      ActionGatherDigits,
		Text:      prompt,
		Language:  language,
		URL:       action,
		NumDigits: numDigits,
		Timeout:   timeout,
	})
	return r
}

func (r *Reply) GatherSpeech(prompt, language, voice, action string, timeout int) *Reply {
	r.Actions = append(r.Actions, Action{
		Kind:     ActionGatherSpeech,
		Text:     prompt,
		Language: language,
		Voice:    voice,
		URL:      action,
		Timeout:  timeout,
	})
	return r
}

func (r *Reply) Redirect(url string) *Reply {
	r.Actions = append(r.Actions, Action{Kind: ActionRedirect, URL: url})
	return r
}

func (r *Reply) Hangup() *Reply {
	r.Actions = append(r.Actions, Action{Kind: ActionHangup})
	return r
}

// Spoken returns every text the caller would hear, in order.
func (r *Reply) Spoken() []string {
	var out []string
	for _, a := range r.Actions {
		if a.Text != "" {
			out = append(out, a.Text)
		}
	}
	return out
}

// Last returns the final action, which decides where the call goes next.
func (r *Reply) Last() Action {
	if len(r.Actions) == 0 {
		return Action{}
	}
	return r.Actions[len(r.Actions)-1]
}
