package viseme

import (
	"strings"
	"unicode"
)

// Alphabet identifies the phonetic notation a producer emits.
type Alphabet string

const (
	AlphabetIPA     Alphabet = "ipa"
	AlphabetARPABET Alphabet = "arpabet"
	AlphabetPinyin  Alphabet = "pinyin"
)

// ipaTable maps IPA symbols onto mouth shapes.
var ipaTable = map[string]Code{
	// Bilabial stops, nasals, silence
	"p": Closed, "b": Closed, "m": Closed, "silence": Closed, "ŋ": Closed,

	// High front vowels
	"i": Small, "ɪ": Small, "e": Small, "ɛ": Small, "eɪ": Small,

	// Mid-low vowels
	"æ": Medium, "ʌ": Medium, "ə": Medium, "ɜ": Medium, "ɝ": Medium,

	// Low back vowels and open diphthongs
	"ɑ": Large, "ɔ": Large, "ɒ": Large, "aɪ": Large, "aʊ": Large,

	// Rounded vowels, labialized consonants
	"o": OShape, "oʊ": OShape, "u": OShape, "ʊ": OShape, "w": OShape, "hw": OShape,

	// Sibilants and palatals
	"s": Smile, "z": Smile, "ʃ": Smile, "ʒ": Smile, "tʃ": Smile, "dʒ": Smile, "j": Smile,

	// Remaining consonants
	"t": Small, "d": Small, "n": Small, "l": Small, "r": Small,
	"k": Small, "g": Small, "h": Small, "f": Small, "v": Small,
	"θ": Small, "ð": Small,
}

// arpabetTable maps stress-less ARPABET phones onto mouth shapes.
var arpabetTable = map[string]Code{
	"P": Closed, "B": Closed, "M": Closed, "SIL": Closed, "NG": Closed,

	"IY": Small, "IH": Small, "EH": Small, "EY": Small,

	"AE": Medium, "AH": Medium, "ER": Medium,

	"AA": Large, "AO": Large, "AY": Large, "AW": Large,

	"OW": OShape, "UH": OShape, "UW": OShape, "W": OShape,

	"S": Smile, "Z": Smile, "SH": Smile, "ZH": Smile, "CH": Smile, "JH": Smile, "Y": Smile,

	"T": Small, "D": Small, "N": Small, "L": Small, "R": Small,
	"K": Small, "G": Small, "HH": Small, "F": Small, "V": Small,
	"TH": Small, "DH": Small,
}

// pinyinTable maps tone-less pinyin syllable parts onto mouth shapes.
var pinyinTable = map[string]Code{
	"b": Closed, "p": Closed, "m": Closed,

	"i": Small, "yi": Small, "e": Small, "ye": Small, "ü": Small, "yu": Small,

	"a": Medium, "ya": Medium, "ei": Medium, "en": Medium, "eng": Medium, "er": Medium,

	"ai": Large, "ao": Large, "an": Large, "ang": Large,

	"o": OShape, "ou": OShape, "ong": OShape, "u": OShape, "wu": OShape, "w": OShape,

	"s": Smile, "z": Smile, "c": Smile, "si": Smile, "zi": Smile, "ci": Smile,
	"x": Smile, "q": Smile, "j": Smile, "sh": Smile, "zh": Smile, "ch": Smile,

	"d": Small, "t": Small, "n": Small, "l": Small, "g": Small,
	"k": Small, "h": Small, "f": Small, "r": Small,
}

// azureTable maps Azure TTS viseme ids (SAPI numbering) onto mouth shapes.
var azureTable = map[int]Code{
	0:  Closed, // silence
	1:  Medium, // AE
	2:  Large,  // AA
	3:  Medium, // AO
	4:  Small,  // EH
	5:  Medium, // ER
	6:  Small,  // IH
	7:  Small,  // IY
	8:  OShape, // UW
	9:  OShape, // UH
	10: Medium, // AH
	11: Small,  // EY
	12: Large,  // AY
	13: Large,  // AW
	14: OShape, // OW
	15: OShape, // OY
	16: OShape, // W
	17: Smile,  // Y
	18: Small,  // R
	19: Small,  // L
	20: Smile,  // S
	21: Smile,  // Z
}

// FromIPA maps an IPA symbol; unknown symbols are Closed.
func FromIPA(symbol string) Code {
	if c, ok := ipaTable[strings.ToLower(strings.TrimSpace(symbol))]; ok {
		return c
	}
	return Closed
}

// FromARPABET maps an ARPABET phone, ignoring stress digits (AE1 -> AE).
func FromARPABET(phone string) Code {
	if c, ok := arpabetTable[strings.ToUpper(stripDigits(phone))]; ok {
		return c
	}
	return Closed
}

// FromPinyin maps a pinyin fragment, ignoring tone digits (ni3 -> ni).
func FromPinyin(syllable string) Code {
	if c, ok := pinyinTable[strings.ToLower(stripDigits(syllable))]; ok {
		return c
	}
	return Closed
}

// FromAzureID maps an Azure viseme event id.
func FromAzureID(id int) Code {
	if c, ok := azureTable[id]; ok {
		return c
	}
	return Closed
}

// FromPhoneme dispatches on the producer's alphabet.
func FromPhoneme(alphabet Alphabet, symbol string) Code {
	switch alphabet {
	case AlphabetARPABET:
		return FromARPABET(symbol)
	case AlphabetPinyin:
		return FromPinyin(symbol)
	default:
		return FromIPA(symbol)
	}
}

// SequenceFromPhonemes converts a phoneme stream into viseme codes.
func SequenceFromPhonemes(alphabet Alphabet, symbols []string) []Code {
	out := make([]Code, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, FromPhoneme(alphabet, s))
	}
	return out
}

func stripDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
