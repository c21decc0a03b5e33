package grading

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"school_lms_backend/internal/model"
)

// Value 学生对单题的作答，Text | SingleChoice | MultiChoice 三选一
type Value interface {
	isValue()
}

type Text string

type SingleChoice uint

// MultiChoice 已去重并升序
type MultiChoice []uint

func (Text) isValue()         {}
func (SingleChoice) isValue() {}
func (MultiChoice) isValue()  {}

// NewMultiChoice 去重排序
func NewMultiChoice(ids ...uint) MultiChoice {
	seen := make(map[uint]struct{}, len(ids))
	out := make(MultiChoice, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseValue 按题型解析客户端提交的原始 JSON。
// 单选题提交空值时返回 nil，表示清空作答。
func ParseValue(qt model.QuestionType, raw json.RawMessage) (Value, error) {
	raw = bytes.TrimSpace(raw)
	isNull := len(raw) == 0 || string(raw) == "null"

	switch qt {
	case model.QuestionText:
		if isNull {
			return Text(""), nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("text answer must be a string")
		}
		return Text(s), nil

	case model.QuestionMultipleChoice:
		if isNull {
			return nil, nil
		}
		id, empty, err := parseChoiceID(raw)
		if err != nil {
			return nil, err
		}
		if empty {
			return nil, nil
		}
		return SingleChoice(id), nil

	case model.QuestionCheckbox:
		if isNull {
			return MultiChoice{}, nil
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("checkbox answer must be a list of choice ids")
		}
		ids := make([]uint, 0, len(items))
		for _, item := range items {
			id, empty, err := parseChoiceID(item)
			if err != nil {
				return nil, err
			}
			if !empty {
				ids = append(ids, id)
			}
		}
		return NewMultiChoice(ids...), nil
	}
	return nil, fmt.Errorf("unknown question type %q", qt)
}

// parseChoiceID 接受数字或数字字符串
func parseChoiceID(raw json.RawMessage) (uint, bool, error) {
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return 0, false, fmt.Errorf("invalid choice id")
	}
	switch t := v.(type) {
	case json.Number:
		n = t
	case string:
		if strings.TrimSpace(t) == "" {
			return 0, true, nil
		}
		n = json.Number(strings.TrimSpace(t))
	case nil:
		return 0, true, nil
	default:
		return 0, false, fmt.Errorf("invalid choice id")
	}
	id, err := strconv.ParseUint(n.String(), 10, 64)
	if err != nil || id == 0 {
		return 0, false, fmt.Errorf("invalid choice id %q", n.String())
	}
	return uint(id), false, nil
}

// ChoiceIDs 返回作答引用的选项
func ChoiceIDs(v Value) []uint {
	switch t := v.(type) {
	case SingleChoice:
		return []uint{uint(t)}
	case MultiChoice:
		return []uint(t)
	}
	return nil
}

// ValuesFromAnswers 由持久化的作答行还原每题作答
func ValuesFromAnswers(questions []model.Question, answers []model.Answer) map[uint]Value {
	types := make(map[uint]model.QuestionType, len(questions))
	for _, q := range questions {
		types[q.ID] = q.QuestionType
	}

	grouped := make(map[uint][]model.Answer)
	for _, a := range answers {
		grouped[a.QuestionID] = append(grouped[a.QuestionID], a)
	}

	values := make(map[uint]Value, len(grouped))
	for qid, rows := range grouped {
		qt, ok := types[qid]
		if !ok {
			continue
		}
		switch qt {
		case model.QuestionText:
			for _, r := range rows {
				if r.AnswerText != nil {
					values[qid] = Text(*r.AnswerText)
				}
			}
		case model.QuestionMultipleChoice:
			for _, r := range rows {
				if r.ChoiceID != nil {
					values[qid] = SingleChoice(*r.ChoiceID)
				}
			}
		case model.QuestionCheckbox:
			ids := make([]uint, 0, len(rows))
			for _, r := range rows {
				if r.ChoiceID != nil {
					ids = append(ids, *r.ChoiceID)
				}
			}
			values[qid] = NewMultiChoice(ids...)
		}
	}
	return values
}

// Rows 将作答展开为待写入的作答行
func Rows(attemptID string, questionID uint, v Value) []model.Answer {
	switch t := v.(type) {
	case Text:
		s := string(t)
		return []model.Answer{{AttemptID: attemptID, QuestionID: questionID, AnswerText: &s}}
	case SingleChoice:
		id := uint(t)
		return []model.Answer{{AttemptID: attemptID, QuestionID: questionID, ChoiceID: &id}}
	case MultiChoice:
		rows := make([]model.Answer, 0, len(t))
		for _, cid := range t {
			id := cid
			rows = append(rows, model.Answer{AttemptID: attemptID, QuestionID: questionID, ChoiceID: &id})
		}
		return rows
	}
	return nil
}

// Export 用于接口返回的作答表示
func Export(v Value) interface{} {
	switch t := v.(type) {
	case Text:
		return string(t)
	case SingleChoice:
		return uint(t)
	case MultiChoice:
		return []uint(t)
	}
	return nil
}
