package domain

var (
	headlineRule     = lengthRule("Headline", 0, 30)
	messageRule      = lengthRule("Message", 0, 100)
	captionRule      = lengthRule("Caption", 0, 60)
	pollHeadlineRule = lengthRule("Poll headline", 0, 30)
	pollChoiceRule   = lengthRule("Poll choice", 0, 40)
)

type Headline struct{ v string }

func NewHeadline(s string) (Headline, error) {
	if err := headlineRule.check("headline", s); err != nil {
		return Headline{}, err
	}
	return Headline{v: s}, nil
}

func (h Headline) String() string { return h.v }

func (h Headline) MarshalText() ([]byte, error) { return []byte(h.v), nil }

func (h *Headline) UnmarshalText(b []byte) error {
	v, err := NewHeadline(string(b))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

type Message struct{ v string }

func NewMessage(s string) (Message, error) {
	if err := messageRule.check("message", s); err != nil {
		return Message{}, err
	}
	return Message{v: s}, nil
}

func (m Message) String() string { return m.v }

func (m Message) MarshalText() ([]byte, error) { return []byte(m.v), nil }

func (m *Message) UnmarshalText(b []byte) error {
	v, err := NewMessage(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

type Caption struct{ v string }

func NewCaption(s string) (Caption, error) {
	if err := captionRule.check("caption", s); err != nil {
		return Caption{}, err
	}
	return Caption{v: s}, nil
}

func (c Caption) String() string { return c.v }

func (c Caption) MarshalText() ([]byte, error) { return []byte(c.v), nil }

func (c *Caption) UnmarshalText(b []byte) error {
	v, err := NewCaption(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

type PollHeadline struct{ v string }

func NewPollHeadline(s string) (PollHeadline, error) {
	if err := pollHeadlineRule.check("headline", s); err != nil {
		return PollHeadline{}, err
	}
	return PollHeadline{v: s}, nil
}

func (p PollHeadline) String() string { return p.v }

func (p PollHeadline) MarshalText() ([]byte, error) { return []byte(p.v), nil }

func (p *PollHeadline) UnmarshalText(b []byte) error {
	v, err := NewPollHeadline(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

type PollChoiceDescription struct{ v string }

func NewPollChoiceDescription(s string) (PollChoiceDescription, error) {
	if err := pollChoiceRule.check("description", s); err != nil {
		return PollChoiceDescription{}, err
	}
	return PollChoiceDescription{v: s}, nil
}

func (p PollChoiceDescription) String() string { return p.v }

func (p PollChoiceDescription) MarshalText() ([]byte, error) { return []byte(p.v), nil }

func (p *PollChoiceDescription) UnmarshalText(b []byte) error {
	v, err := NewPollChoiceDescription(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
