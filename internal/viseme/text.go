package viseme

import (
	"strings"
	"unicode"
)

// PhonemeGroup is a coarse vowel class used when only text is available.
type PhonemeGroup int

const (
	GroupNone   PhonemeGroup = iota
	GroupLarge               // open vowels: a, ia, ua, ai, an, ang
	GroupOShape              // rounded: o, uo, ou, u, ong
	GroupSmile               // spread: i, e, ei, ie, ü, en, eng, in, ing
)

// GroupMapping configures how text-derived groups turn into viseme frames.
// Each syllable emits Attack, Sustain copies of its group shape, then Release.
type GroupMapping struct {
	Groups  map[PhonemeGroup]Code
	Attack  Code
	Release Code
	Default Code
	Sustain int
}

// DefaultGroupMapping mirrors the stock lip-sync lite mapping.
func DefaultGroupMapping() GroupMapping {
	return GroupMapping{
		Groups: map[PhonemeGroup]Code{
			GroupLarge:  Large,
			GroupOShape: OShape,
			GroupSmile:  Smile,
		},
		Attack:  Small,
		Release: Small,
		Default: Small,
		Sustain: 2,
	}
}

func (m GroupMapping) shape(g PhonemeGroup) Code {
	if c, ok := m.Groups[g]; ok {
		return c
	}
	return m.Default
}

// Common Hanzi classified by final. Only the frequent characters are listed;
// anything else falls back to GroupNone.
const (
	hanziLarge = "阿啊爸把罢八拔大答打达发法罚花化画话家加价架卡咖拉啦妈马吗那拿哪怕爬帕沙杀刹傻他它她下夏吓杂扎渣查差插" +
		"安按暗办半班单但蛋反饭范干感看刊兰蓝烂慢满难南男盘盼山闪善天田填湾晚完玩赞站占战" +
		"帮棒忙盲旁胖当党挡方放房光广黄谎江讲将抗康狂浪朗亮两量茫囊桑丧上伤汤躺忘望王脏张章长常唱" +
		"傲奥澳包宝保抱草操曹道到岛刀高搞告好号耗考靠老劳脑闹跑泡扫嫂少烧套讨跳挑要药照找招赵"

	hanziOShape = "波伯播拨多夺朵躲罗萝落佛我卧握做作坐座说缩所锁国果过郭火活货或某谋末磨破婆迫若弱索托脱妥窝左佐" +
		"欧偶呕剖否抽丑凑豆斗读独度都富夫复福姑古顾骨乎互户虎苦库裤路鲁录鹿模母木目努怒普铺谱入如苏俗素速图土吐兔五午舞务猪朱主住租组足族" +
		"红洪宏公工功共东动冬懂空孔控龙隆弄农浓松送宋通同痛中重种众总宗纵"

	hanziSmile = "笔比必毕彼地弟第低底敌鸡几机极记计奇七气起妻西洗系喜戏细一以已意医依你尼泥拟里力立理利米密迷秘皮提体题替梯希吸析习" +
		"车扯彻得德特色涩乐勒热格革客刻" +
		"贝被背杯飞非肥废给黑嘿雷类累妹美内配佩陪切且写谢协些夜业野叶杰解姐界接别憋灭蔑列烈猎贴铁" +
		"根跟很狠门们恩喷盆人认任神深身什真针镇阵文问闻稳" +
		"平凭瓶名明命灵令领零听厅停定订顶丁井警景京精经惊轻清情青兴星行形性影应英营硬" +
		"居局举句据去区取曲需许序虚女旅律绿雨语育欲预"
)

var hanziGroups = func() map[rune]PhonemeGroup {
	m := make(map[rune]PhonemeGroup, 600)
	for _, r := range hanziLarge {
		m[r] = GroupLarge
	}
	for _, r := range hanziOShape {
		m[r] = GroupOShape
	}
	for _, r := range hanziSmile {
		m[r] = GroupSmile
	}
	return m
}()

// GroupOf classifies a single character.
func GroupOf(r rune) PhonemeGroup {
	if g, ok := hanziGroups[r]; ok {
		return g
	}
	switch unicode.ToLower(r) {
	case 'a':
		return GroupLarge
	case 'o', 'u', 'w':
		return GroupOShape
	case 'e', 'i', 'y':
		return GroupSmile
	}
	return GroupNone
}

// SequenceFromText derives a viseme sequence from display text for producers
// that have audio but no phoneme timing. Whitespace and punctuation close the
// mouth; CJK characters are treated as one syllable each.
func SequenceFromText(text string, m GroupMapping) []Code {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if m.Sustain < 1 {
		m.Sustain = 1
	}

	out := make([]Code, 0, len(text)*2)
	push := func(c Code) {
		// consecutive closed frames collapse into one pause
		if c == Closed && len(out) > 0 && out[len(out)-1] == Closed {
			return
		}
		out = append(out, c)
	}

	for _, r := range text {
		switch {
		case unicode.IsSpace(r), unicode.IsPunct(r), unicode.IsSymbol(r):
			push(Closed)

		case unicode.Is(unicode.Han, r):
			push(m.Attack)
			shape := m.shape(GroupOf(r))
			for i := 0; i < m.Sustain; i++ {
				out = append(out, shape)
			}
			push(m.Release)

		case unicode.IsLetter(r):
			g := GroupOf(r)
			if g == GroupNone {
				if unicode.ToLower(r) == 'm' || unicode.ToLower(r) == 'b' || unicode.ToLower(r) == 'p' {
					push(Closed)
					continue
				}
				push(m.Default)
				continue
			}
			shape := m.shape(g)
			for i := 0; i < m.Sustain; i++ {
				out = append(out, shape)
			}
		}
	}

	if len(out) > 0 && out[len(out)-1] != Closed {
		out = append(out, Closed)
	}
	return out
}
