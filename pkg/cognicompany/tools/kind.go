package tools

// Kind identifies one capability. Dispatch switches over every Kind.
type Kind int

const (
	KindUnknown Kind = iota
	KindDateTime
	KindUserLookup
	KindMention
	KindTaskCreate
	KindTaskList
	KindTaskComplete
	KindImage
	KindTTS
	KindTranscribe
	KindAssistantList
	KindWebScrape
)

var kindNames = map[Kind]string{
	KindDateTime:      "datetime",
	KindUserLookup:    "user_lookup",
	KindMention:       "mention",
	KindTaskCreate:    "task_create",
	KindTaskList:      "task_list",
	KindTaskComplete:  "task_complete",
	KindImage:         "image",
	KindTTS:           "tts",
	KindTranscribe:    "transcribe",
	KindAssistantList: "assistant_list",
	KindWebScrape:     "web_scrape",
}

var kindsByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, n := range kindNames {
		m[n] = k
	}
	return m
}()

// String returns the wire name of the tool.
func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// ParseKind maps a wire name to its Kind, or KindUnknown.
func ParseKind(name string) Kind {
	return kindsByName[name]
}

// AllKinds lists every known Kind in declaration order.
func AllKinds() []Kind {
	out := make([]Kind, 0, len(kindNames))
	for k := KindDateTime; k <= KindWebScrape; k++ {
		out = append(out, k)
	}
	return out
}
