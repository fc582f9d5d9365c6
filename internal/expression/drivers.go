package expression

import (
	"strings"
	"unicode"
)

// ExpressionForAffinity maps a relationship score in [-100, 100] onto a
// resting mood.
func ExpressionForAffinity(affinity float64) Expression {
	switch {
	case affinity >= 30:
		return Happy
	case affinity >= 0:
		return Neutral
	case affinity >= -30:
		return Annoyed
	case affinity >= -60:
		return Disappointed
	default:
		return Angry
	}
}

// Game event kinds with a dedicated reaction.
const (
	EventColonistDeath   = "colonist_death"
	EventRaidVictory     = "raid_victory"
	EventRaidIncoming    = "raid_incoming"
	EventMajorLoss       = "major_loss"
	EventGreatSuccess    = "great_success"
	EventUnexpectedEvent = "unexpected_event"
)

// ExpressionForEvent maps a game event onto a reaction. Unknown kinds fall
// back on the event's polarity.
func ExpressionForEvent(kind string, positive bool) Expression {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case EventColonistDeath:
		return Sad
	case EventRaidVictory:
		return Happy
	case EventRaidIncoming:
		return Worried
	case EventMajorLoss:
		return Disappointed
	case EventGreatSuccess:
		return Smug
	case EventUnexpectedEvent:
		return Surprised
	}
	if positive {
		return Happy
	}
	return Sad
}

type toneRule struct {
	expr     Expression
	keywords []string
}

// toneRules are checked in order; the first rule with a hit wins.
var toneRules = []toneRule{
	{Happy, []string{
		"哈哈", "嘻嘻", "真好", "太棒", "开心", "高兴", "喜欢", "不错", "很好", "没问题",
		"愉快", "快乐", "欢迎", "恭喜", "祝贺", "厉害", "优秀", "完美", "太好了", "好极了",
		"fantastic", "great", "wonderful", "happy", "haha", "good", "nice", "excellent",
		"awesome", "perfect", "love", "enjoy", "glad", "pleased", "delighted", "cheerful",
		"joyful", "yay", "cool", "brilliant", "superb", "terrific", "splendid",
	}},
	{Angry, []string{
		"可恶", "该死", "混蛋", "愤怒", "生气", "讨厌", "闭嘴", "废物", "白痴", "可恨",
		"恼火", "火大", "气死", "休想", "不可能",
		"damn", "angry", "furious", "irritated", "hate", "stupid", "idiot", "shut up",
		"annoying", "rage", "mad", "pissed", "disgusting",
	}},
	{Sad, []string{
		"悲伤", "难过", "可怜", "遗憾", "伤心", "哭", "泪", "不幸", "可惜", "伤感",
		"心痛", "痛苦", "对不起", "失去",
		"sad", "unfortunate", "regret", "pity", "cry", "tears", "sorrow", "sorry",
		"miss", "loss", "grief", "mourn", "tragic", "painful",
	}},
	{Surprised, []string{
		"不会吧", "天啊", "居然", "竟然", "震惊", "意外", "没想到", "不敢相信", "我的天", "天哪",
		"really", "wow", "omg", "surprising", "shocked", "amazing", "unbelievable",
		"incredible", "unexpected", "seriously", "no way",
	}},
	{Worried, []string{
		"担心", "忧虑", "危险", "小心", "警惕", "害怕", "恐惧", "紧张", "焦虑", "不安",
		"风险", "威胁", "糟糕", "不妙", "麻烦", "棘手",
		"worried", "concerned", "careful", "beware", "afraid", "fear", "nervous",
		"anxious", "danger", "risk", "threat", "trouble",
	}},
	{Playful, []string{
		"嘿嘿", "逗你", "开玩笑", "捉弄", "调皮", "坏笑", "偷笑", "略略略", "骗你的",
		"playful", "teasing", "mischievous", "hehe", "kidding", "joking", "prank",
		"naughty",
	}},
	{Smug, []string{
		"看吧", "果然", "不出所料", "就知道", "小意思", "不在话下", "本大人", "本小姐",
		"told you", "as expected", "obviously", "of course", "naturally", "knew it",
		"predicted",
	}},
	{Disappointed, []string{
		"失望", "算了", "无奈", "放弃", "没办法", "没用", "无语", "疲惫", "懒得",
		"disappointed", "sigh", "alas", "whatever", "give up", "useless", "hopeless",
		"tired", "exhausted", "boring",
	}},
	{Thoughtful, []string{
		"让我想想", "思考", "考虑", "分析", "研究", "琢磨", "推测", "估计", "似乎",
		"hmm", "perhaps", "maybe", "consider", "think", "analyze", "ponder", "suppose",
		"guess", "probably", "seems", "apparently", "let me see",
	}},
	{Annoyed, []string{
		"够了", "行了", "知道了", "好了好了", "别说了", "安静", "打扰",
		"annoyed", "bothered", "enough", "stop", "quiet", "leave me",
	}},
	{Shy, []string{
		"害羞", "不好意思", "脸红", "羞涩", "难为情", "尴尬", "谢谢你", "太客气了",
		"shy", "embarrassed", "blush", "awkward", "umm", "thank you", "thanks",
		"appreciate", "grateful",
	}},
	{Confused, []string{
		"什么", "怎么", "为何", "难道", "莫非", "岂不是",
		"what", "how", "why", "huh", "confused", "puzzled",
	}},
}

// ExpressionForDialogue detects the tone of a line of dialogue. Latin
// keywords must match whole words; CJK keywords match anywhere. The second
// result is false when no tone was detected.
func ExpressionForDialogue(text string) (Expression, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return Neutral, false
	}
	words := " " + strings.Join(strings.FieldsFunc(text, notWordRune), " ") + " "

	for _, rule := range toneRules {
		for _, kw := range rule.keywords {
			if isLatin(kw) {
				if strings.Contains(words, " "+kw+" ") {
					return rule.expr, true
				}
				continue
			}
			if strings.Contains(text, kw) {
				return rule.expr, true
			}
		}
	}
	return Neutral, false
}

func notWordRune(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
}

func isLatin(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
