package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// 测试用例类型
const (
	TypePositive = "positive"
	TypeNegative = "negative"
)

// 优先级
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// 引用类型
const (
	ReferenceManual       = "manual_reference"
	ReferenceRAGRetrieval = "rag_retrieval"
	ReferenceDerived      = "derived"
)

// AI 生成方式
const (
	GenerationPureAI = "pure_ai"
	GenerationRAG    = "rag"
)

// TestStep 测试步骤
type TestStep struct {
	Step           string `json:"step"`
	ExpectedResult string `json:"expectedResult"`
}

// TestCase 测试用例模型
type TestCase struct {
	ID             string      `gorm:"primaryKey;size:36" json:"id"`
	Name           string      `gorm:"size:255;not null" json:"name"`
	Description    string      `gorm:"type:text" json:"description"`
	Type           string      `gorm:"size:20;not null;index" json:"type"`     // positive, negative
	Priority       string      `gorm:"size:10;not null;index" json:"priority"` // high, medium, low
	Steps          StepList    `gorm:"type:text" json:"steps"`
	ExpectedResult string      `gorm:"type:text" json:"expectedResult"`
	Tags           StringArray `gorm:"type:text" json:"tags"`

	// Embedding vector, serialized to JSON text. Never exposed through the API.
	Embedding string `gorm:"type:text" json:"-"`

	// AI metadata, present only for AI-assisted test cases
	AIGenerated        bool     `gorm:"default:false" json:"aiGenerated"`
	OriginalPrompt     string   `gorm:"type:text" json:"originalPrompt,omitempty"`
	AIConfidence       *float64 `json:"aiConfidence,omitempty"`
	AISuggestions      string   `gorm:"type:text" json:"aiSuggestions,omitempty"`
	AIGenerationMethod string   `gorm:"size:20" json:"aiGenerationMethod,omitempty"` // pure_ai, rag
	TokenUsage         JSONB    `gorm:"type:text;column:token_usage" json:"tokenUsage,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (TestCase) TableName() string {
	return "test_cases"
}

// TestCaseReference 测试用例引用关系（有向边）
//
// No gorm association is declared: the source schema carries no foreign-key
// constraint, so edges survive deletion of either endpoint.
type TestCaseReference struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	SourceID        string    `gorm:"size:36;not null;index" json:"sourceId"`
	TargetID        string    `gorm:"size:36;not null;index" json:"targetId"`
	ReferenceType   string    `gorm:"size:30;not null" json:"referenceType"` // manual_reference, rag_retrieval, derived
	SimilarityScore *float64  `json:"similarityScore"`                       // only set for rag_retrieval
	CreatedAt       time.Time `gorm:"index" json:"createdAt"`
}

// TableName 指定表名
func (TestCaseReference) TableName() string {
	return "test_case_references"
}

// ===== 自定义JSON类型 =====

// StepList 测试步骤列表，序列化为JSON文本列
type StepList []TestStep

func (s StepList) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *StepList) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("failed to unmarshal StepList value: unsupported type %T", value)
	}

	if len(bytes) == 0 {
		*s = StepList{}
		return nil
	}
	if err := json.Unmarshal(bytes, s); err != nil {
		return fmt.Errorf("failed to unmarshal StepList value: %w (input: %s)", err, string(bytes))
	}
	return nil
}

// StringArray 字符串数组类型
type StringArray []string

func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("failed to unmarshal StringArray value: unsupported type %T", value)
	}

	if len(bytes) == 0 {
		*a = StringArray{}
		return nil
	}
	if err := json.Unmarshal(bytes, a); err != nil {
		return fmt.Errorf("failed to unmarshal StringArray value: %w (input: %s)", err, string(bytes))
	}
	return nil
}

// JSONB 自定义JSON类型（用于对象）
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		s, isString := value.(string)
		if !isString {
			return errors.New("failed to unmarshal JSONB value")
		}
		bytes = []byte(s)
	}
	return json.Unmarshal(bytes, j)
}
