package content

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Message keys for fixed engine and presentation strings
const (
	MsgFallback      = "msg.fallback"
	MsgStreamFailed  = "msg.stream_failed"
	MsgNoPayload     = "msg.no_payload"
	MsgLoading       = "msg.loading"
	MsgContinue      = "msg.continue"
	MsgWaiting       = "msg.waiting"
	MsgRetry         = "msg.retry"
	MsgRestart       = "msg.restart"
	MsgEndingChapter = "msg.ending_chapter"
)

const unknownEndingKey = "ending.type.unknown"

var endingTypeKeys = map[string]string{
	"good":      "ending.type.good",
	"bad":       "ending.type.bad",
	"power":     "ending.type.power",
	"freedom":   "ending.type.freedom",
	"harmony":   "ending.type.harmony",
	"transcend": "ending.type.transcend",
	"tragic":    "ending.type.tragic",
	"legend":    "ending.type.legend",
	"love":      "ending.type.love",
}

type translation struct {
	zh string
	en string
}

var translations = map[string]translation{
	"ending.type.good":      {"完美结局", "Perfect Ending"},
	"ending.type.bad":       {"悲剧结局", "Tragic Ending"},
	"ending.type.power":     {"权势结局", "Ending of Power"},
	"ending.type.freedom":   {"自由结局", "Ending of Freedom"},
	"ending.type.harmony":   {"和谐结局", "Harmonious Ending"},
	"ending.type.transcend": {"超脱结局", "Transcendent Ending"},
	"ending.type.tragic":    {"宿命结局", "Fated Ending"},
	"ending.type.legend":    {"传奇结局", "Legendary Ending"},
	"ending.type.love":      {"爱情结局", "Ending of Love"},
	unknownEndingKey:        {"未知结局", "Unknown Ending"},

	MsgFallback:      {"命运之轮转动，新篇章已开启。", "The wheel of fate turns, and a new chapter begins."},
	MsgStreamFailed:  {"剧情生成失败，请稍后重试。", "The story could not be generated. Please try again."},
	MsgNoPayload:     {"未能获取新的篇章，请重试。", "No new chapter arrived. Please try again."},
	MsgLoading:       {"命运推演中", "Divining fate"},
	MsgContinue:      {"继续步入", "Continue"},
	MsgWaiting:       {"正在开启新篇章...", "Opening the next chapter..."},
	MsgRetry:         {"重试", "Retry"},
	MsgRestart:       {"再续前缘", "Play again"},
	MsgEndingChapter: {"结局", "Ending"},
}

func init() {
	if err := registerTranslations(message.SetString); err != nil {
		panic(err)
	}
}

func registerTranslations(set func(tag language.Tag, key, msg string) error) error {
	for key, t := range translations {
		if err := set(language.Chinese, key, t.zh); err != nil {
			return fmt.Errorf("failed to register %s (zh): %w", key, err)
		}
		if err := set(language.English, key, t.en); err != nil {
			return fmt.Errorf("failed to register %s (en): %w", key, err)
		}
	}
	return nil
}

// EndingTypeLabel returns the localized badge for an ending type.
func EndingTypeLabel(tag language.Tag, endingType string) string {
	key, ok := endingTypeKeys[endingType]
	if !ok {
		key = unknownEndingKey
	}
	return Text(tag, key)
}

// Text returns the localized string for a message key.
func Text(tag language.Tag, key string) string {
	return message.NewPrinter(tag).Sprintf(key)
}

// ParseLocale resolves a locale string, falling back to Chinese.
func ParseLocale(locale string) language.Tag {
	tag, err := language.Parse(locale)
	if err != nil {
		return language.Chinese
	}
	return tag
}
