package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// Question 单道选择题，选项固定为A-D四个
// swagger:model Question
type Question struct {
	QuestionText  string            `json:"question_text"`
	Options       map[string]string `json:"options"`
	CorrectAnswer string            `json:"correct_answer"`
}

// QuestionList 以JSON列形式存储在dashboard表中，只追加不修改
type QuestionList []Question

func (q QuestionList) Value() (driver.Value, error) {
	if q == nil {
		return "[]", nil
	}
	data, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (q *QuestionList) Scan(value interface{}) error {
	if value == nil {
		*q = QuestionList{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported type for QuestionList")
	}

	if len(data) == 0 {
		*q = QuestionList{}
		return nil
	}
	return json.Unmarshal(data, q)
}
