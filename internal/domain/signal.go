package domain

import "encoding/json"

// SignalKind 是信令载荷的判别结果，仅用于日志和分支，
// 中继从不解析载荷的其余内容。
type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "candidate"
	SignalUnknown   SignalKind = "unknown"
)

// SniffSignalKind 探测不透明信令载荷的类型：
// 有 type 字段的是 offer/answer，有 candidate 字段的是 ICE 候选。
// 载荷不是合法 JSON 对象时返回 SignalUnknown，中继照常转发。
func SniffSignalKind(raw json.RawMessage) SignalKind {
	var probe struct {
		Type      string          `json:"type"`
		Candidate json.RawMessage `json:"candidate"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return SignalUnknown
	}
	switch probe.Type {
	case "offer":
		return SignalOffer
	case "answer":
		return SignalAnswer
	}
	if len(probe.Candidate) > 0 {
		return SignalCandidate
	}
	return SignalUnknown
}
