// Package mood estimates the dominant mood of what a user said in a session.
package mood

import (
	"strings"
)

// Label 表示日记条目可携带的情绪标签。
type Label string

const (
	Neutral  Label = "neutral"
	Happy    Label = "happy"
	Sad      Label = "sad"
	Angry    Label = "angry"
	Anxious  Label = "anxious"
	Excited  Label = "excited"
	Calm     Label = "calm"
	Grateful Label = "grateful"
)

// Decision 给出情绪识别结果与置信得分。
type Decision struct {
	Mood  Label `json:"mood"`
	Score int   `json:"score"`
}

var keywordBuckets = map[Label][]string{
	Happy: {
		"happy", "glad", "good day", "great", "fun", "laughed", "smile", "enjoyed", "proud", "love",
		"开心", "高兴", "快乐", "满意",
	},
	Sad: {
		"sad", "down", "lonely", "cry", "cried", "miss", "hurt", "disappointed", "upset", "empty",
		"难过", "伤心", "失落", "孤单",
	},
	Angry: {
		"angry", "furious", "mad", "annoyed", "frustrated", "irritated", "fed up", "pissed", "unfair",
		"生气", "愤怒", "烦死",
	},
	Anxious: {
		"anxious", "worried", "nervous", "stress", "stressed", "overwhelmed", "panic", "afraid", "scared", "deadline",
		"焦虑", "担心", "紧张", "压力",
	},
	Excited: {
		"excited", "can't wait", "amazing", "awesome", "thrilled", "wow", "finally", "pumped",
		"激动", "期待", "兴奋",
	},
	Calm: {
		"calm", "relaxed", "peaceful", "quiet", "rested", "slow morning", "content", "at ease",
		"平静", "放松",
	},
	Grateful: {
		"grateful", "thankful", "thanks to", "appreciate", "lucky", "blessed",
		"感恩", "感谢", "感激",
	},
}

// Analyze 根据用户在会话中说过的话推断整体情绪。
func Analyze(userText string) Decision {
	normalized := strings.TrimSpace(strings.ToLower(userText))
	if normalized == "" {
		return Decision{Mood: Neutral}
	}

	scores := make(map[Label]int)
	for label, keywords := range keywordBuckets {
		for _, word := range keywords {
			scores[label] += 3 * strings.Count(normalized, word)
		}
	}

	// 感叹号放大积极情绪。
	if exclamations := strings.Count(userText, "!"); exclamations > 0 {
		scores[Excited] += exclamations * 2
		if scores[Happy] > 0 {
			scores[Happy] += 2
		}
	}
	// 转折之后的情绪更能代表结论，例如 "tired but grateful"。
	if idx := strings.LastIndex(normalized, " but "); idx >= 0 {
		for label, s := range scoreTail(normalized[idx:]) {
			scores[label] += s
		}
	}

	best := Neutral
	bestScore := 0
	for _, label := range order {
		if s := scores[label]; s > bestScore {
			best, bestScore = label, s
		}
	}
	return Decision{Mood: best, Score: bestScore}
}

// order breaks ties deterministically.
var order = []Label{Grateful, Sad, Anxious, Angry, Excited, Happy, Calm}

func scoreTail(tail string) map[Label]int {
	scores := make(map[Label]int)
	for label, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(tail, word) {
				scores[label]++
			}
		}
	}
	return scores
}
