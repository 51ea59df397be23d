package models

import (
	"encoding/json"
	"time"
)

// ScopeKind 技术员范围策略
type ScopeKind string

const (
	ScopeAll    ScopeKind = "ALL"    // 组内全部成员
	ScopeExcept ScopeKind = "EXCEPT" // 排除列出的成员
	ScopeOnline ScopeKind = "ONLINE" // 仅限列出的成员
	ScopeOnly   ScopeKind = "ONLY"   // 恰好一名成员
)

// ApplyTimeKind 规则生效时段类型
type ApplyTimeKind string

const (
	ApplyAllTime ApplyTimeKind = "ALL_TIME"
	ApplyInWork  ApplyTimeKind = "IN_WORK"
	ApplyOutWork ApplyTimeKind = "OUT_WORK"
)

// AutoType 自动分配算法
type AutoType string

const (
	AutoRoundRobin    AutoType = "ROUND_ROBIN"
	AutoLoadBalancing AutoType = "LOAD_BALANCING"
)

// FieldRef 字段目录条目：逻辑字段名 → 工单属性树中的定位路径
type FieldRef struct {
	Name     string `json:"name"`
	Display  string `json:"display"`
	Location string `json:"location"`
}

// RuleCondition 单个条件：字段 + 允许值集合
type RuleCondition struct {
	Field  FieldRef `json:"field"`
	Values []string `json:"values"`
}

// TechnicianRef 规则内嵌的技术员引用
type TechnicianRef struct {
	ID       uint   `json:"id"`
	FullName string `json:"fullname"`
	Email    string `json:"email"`
}

// TechScope 四种技术员范围之一；Techs 仅对 EXCEPT/ONLINE/ONLY 有意义
type TechScope struct {
	Type  ScopeKind       `json:"type"`
	Techs []TechnicianRef `json:"techs,omitempty"`
}

// GroupSnapshot 规则保存时对支持组的反规范化拷贝
type GroupSnapshot struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Tenant    string `json:"tenant"`
	MemberIDs []uint `json:"members"`
	LeaderID  *uint  `json:"leader,omitempty"`
}

// TimeWindow 工作时段窗口（HH:MM）
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ApplyTime 规则生效时段
type ApplyTime struct {
	Type ApplyTimeKind `json:"type"`
	Time *TimeWindow   `json:"time,omitempty"`
}

// AssignmentRule 自动分配规则。Conditions/ApplyEvents/ApplyTime/
// GroupSnapshot/TechScope 为 JSON 文本列；Priority 在 (tenant, ticket_type)
// 内唯一且稠密，升序即评估顺序。
type AssignmentRule struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Tenant        string     `gorm:"index:idx_rule_scope" json:"tenant"`
	TicketType    TicketType `gorm:"index:idx_rule_scope" json:"ticket_type"`
	Name          string     `gorm:"not null" json:"name"`
	Description   string     `gorm:"type:text" json:"description"`
	Conditions    string     `gorm:"type:text" json:"conditions"`
	ApplyEvents   string     `json:"apply_request"`
	ApplyTime     string     `gorm:"type:text" json:"apply_time"`
	GroupSnapshot string     `gorm:"type:text" json:"group"`
	TechScope     string     `gorm:"type:text" json:"apply_tech"`
	AutoType      AutoType   `gorm:"default:'ROUND_ROBIN'" json:"auto_type"`
	Priority      int        `gorm:"index" json:"priority"`
	IsActive      bool       `gorm:"default:true" json:"is_active"`
	IsApply       bool       `gorm:"default:true" json:"is_apply"`
	IsDelete      bool       `gorm:"default:false;index" json:"is_delete"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// DecodeConditions 解析条件列；空列返回空切片
func (r *AssignmentRule) DecodeConditions() ([]RuleCondition, error) {
	if r.Conditions == "" {
		return nil, nil
	}
	var conds []RuleCondition
	if err := json.Unmarshal([]byte(r.Conditions), &conds); err != nil {
		return nil, err
	}
	return conds, nil
}

// DecodeApplyEvents 解析规则响应的触发事件集合
func (r *AssignmentRule) DecodeApplyEvents() ([]TriggerEvent, error) {
	if r.ApplyEvents == "" {
		return nil, nil
	}
	var evts []TriggerEvent
	if err := json.Unmarshal([]byte(r.ApplyEvents), &evts); err != nil {
		return nil, err
	}
	return evts, nil
}

// DecodeApplyTime 解析生效时段；空列视为 ALL_TIME
func (r *AssignmentRule) DecodeApplyTime() (ApplyTime, error) {
	if r.ApplyTime == "" {
		return ApplyTime{Type: ApplyAllTime}, nil
	}
	var at ApplyTime
	if err := json.Unmarshal([]byte(r.ApplyTime), &at); err != nil {
		return ApplyTime{}, err
	}
	return at, nil
}

// DecodeTechScope 解析技术员范围
func (r *AssignmentRule) DecodeTechScope() (TechScope, error) {
	var scope TechScope
	if r.TechScope == "" {
		return TechScope{Type: ScopeAll}, nil
	}
	if err := json.Unmarshal([]byte(r.TechScope), &scope); err != nil {
		return TechScope{}, err
	}
	return scope, nil
}

// DecodeGroupSnapshot 解析规则保存时的组快照
func (r *AssignmentRule) DecodeGroupSnapshot() (GroupSnapshot, error) {
	var snap GroupSnapshot
	if r.GroupSnapshot == "" {
		return snap, nil
	}
	if err := json.Unmarshal([]byte(r.GroupSnapshot), &snap); err != nil {
		return GroupSnapshot{}, err
	}
	return snap, nil
}

// AssignmentRecord 每次成功自动分配写入的审计记录
type AssignmentRecord struct {
	ID            uint         `gorm:"primaryKey" json:"id"`
	CorrelationID string       `gorm:"index" json:"correlation_id"`
	Tenant        string       `gorm:"index" json:"tenant"`
	TicketID      uint         `gorm:"index" json:"ticket_id"`
	RuleID        uint         `gorm:"index" json:"rule_id"`
	GroupID       uint         `json:"group_id"`
	TechnicianID  uint         `gorm:"index" json:"technician_id"`
	TriggerEvent  TriggerEvent `json:"trigger_event"`
	Reason        string       `json:"reason"` // round-robin
	CreatedAt     time.Time    `json:"created_at"`

	Rule AssignmentRule `gorm:"foreignKey:RuleID" json:"rule,omitempty"`
}
