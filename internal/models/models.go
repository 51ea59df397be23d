package models

import (
	"time"

	"gorm.io/gorm"
)

// 工单类型
type TicketType string

const (
	TicketTypeRequest  TicketType = "REQUEST"
	TicketTypeIncident TicketType = "INCIDENT"
)

// TriggerEvent 触发自动分配的工单生命周期事件
type TriggerEvent string

const (
	TriggerCreate TriggerEvent = "CREATE"
	TriggerEdit   TriggerEvent = "EDIT"
)

// Technician 技术员（从用户目录同步的快照行）
type Technician struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Tenant   string `gorm:"index;not null" json:"tenant"`
	FullName string `gorm:"not null" json:"fullname"`
	Email    string `gorm:"index" json:"email"`
	IsActive bool   `gorm:"default:true" json:"is_active"`
	// IsAuto 参与自动分配；LastTicketAt 是公平轮转信号
	IsAuto       bool           `gorm:"default:true" json:"is_auto"`
	LastTicketAt *time.Time     `json:"last_time_ticket"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// SupportGroup 支持组
type SupportGroup struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Tenant    string         `gorm:"index;not null" json:"tenant"`
	Name      string         `gorm:"not null" json:"name"`
	LeaderID  *uint          `json:"leader_id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Members []Technician `gorm:"many2many:group_members;" json:"members,omitempty"`
}

// Ticket 工单。Attributes 保存用于规则匹配的属性树快照
// （service、category、requester.department 等），JSON 文本列。
type Ticket struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Tenant      string     `gorm:"index;not null" json:"tenant"`
	TicketType  TicketType `gorm:"index;not null" json:"ticket_type"`
	Title       string     `gorm:"not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	Status      string     `gorm:"default:'open'" json:"status"`
	Attributes  string     `gorm:"type:text" json:"attributes"`
	AssigneeID  *uint      `gorm:"index" json:"assignee_id"`
	GroupID     *uint      `gorm:"index" json:"group_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Assignee *Technician   `gorm:"foreignKey:AssigneeID" json:"assignee,omitempty"`
	Group    *SupportGroup `gorm:"foreignKey:GroupID" json:"group,omitempty"`
}

// TaxonomyValue 按 (tenant, ticket_type, field) 保存允许的取值。
// 规则校验时作为值域快照读取；完整的分类目录 CRUD 不在本服务内。
type TaxonomyValue struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Tenant     string     `gorm:"index:idx_taxonomy_scope" json:"tenant"`
	TicketType TicketType `gorm:"index:idx_taxonomy_scope" json:"ticket_type"`
	Field      string     `gorm:"index:idx_taxonomy_scope" json:"field"`
	Value      string     `gorm:"not null" json:"value"`
	Display    string     `json:"display"`
	CreatedAt  time.Time  `json:"created_at"`
}
