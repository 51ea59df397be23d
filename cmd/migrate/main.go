package main

import (
	"fmt"
	"log"
	"os"

	"deskify/internal/config"
	"deskify/internal/models"

	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	// 加载配置
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cfg := config.Load()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
			cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port)
	}

	// 连接数据库
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	log.Println("Starting database migration...")

	// 自动迁移所有模型
	err = db.AutoMigrate(
		&models.Technician{},
		&models.SupportGroup{},
		&models.Ticket{},
		&models.TaxonomyValue{},
		&models.AssignmentRule{},
		&models.AssignmentRecord{},
	)
	if err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	log.Println("Database migration completed successfully!")

	// 创建索引
	log.Println("Creating additional indexes...")

	// 规则按租户+类型+优先级的求值顺序
	db.Exec("CREATE INDEX IF NOT EXISTS idx_rules_scope_priority ON assignment_rules(tenant, ticket_type, priority)")

	// 工单表复合索引
	db.Exec("CREATE INDEX IF NOT EXISTS idx_tickets_tenant_type ON tickets(tenant, ticket_type)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_tickets_assignee_status ON tickets(assignee_id, status)")

	// 技术员公平轮转查询
	db.Exec("CREATE INDEX IF NOT EXISTS idx_technicians_tenant_last ON technicians(tenant, last_ticket_at)")

	// 审计记录
	db.Exec("CREATE INDEX IF NOT EXISTS idx_records_tenant_created ON assignment_records(tenant, created_at)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_records_ticket ON assignment_records(ticket_id)")

	log.Println("Additional indexes created successfully!")

	// 插入默认数据
	if len(os.Args) > 1 && os.Args[1] == "--seed" {
		log.Println("Seeding default data...")
		seedDefaultData(db)
		log.Println("Default data seeded successfully!")
	}

	log.Println("Migration process completed!")
}

func seedDefaultData(db *gorm.DB) {
	// 创建演示技术员与支持组
	var tech models.Technician
	if err := db.Where("email = ?", "tech1@deskify.local").First(&tech).Error; err != nil {
		techs := []models.Technician{
			{Tenant: "demo", FullName: "一线支持A", Email: "tech1@deskify.local", IsActive: true, IsAuto: true},
			{Tenant: "demo", FullName: "一线支持B", Email: "tech2@deskify.local", IsActive: true, IsAuto: true},
			{Tenant: "demo", FullName: "二线支持C", Email: "tech3@deskify.local", IsActive: true, IsAuto: true},
		}
		db.Create(&techs)

		group := models.SupportGroup{
			Tenant:  "demo",
			Name:    "服务台一线",
			Members: techs,
		}
		db.Create(&group)
		log.Println("Created demo technicians and group")
	}

	// 默认值域：REQUEST 类型的常用字段取值
	var count int64
	db.Model(&models.TaxonomyValue{}).Where("tenant = ?", "demo").Count(&count)
	if count == 0 {
		values := []models.TaxonomyValue{
			{Tenant: "demo", TicketType: models.TicketTypeRequest, Field: "service", Value: "email", Display: "邮件服务"},
			{Tenant: "demo", TicketType: models.TicketTypeRequest, Field: "service", Value: "vpn", Display: "VPN"},
			{Tenant: "demo", TicketType: models.TicketTypeRequest, Field: "category", Value: "access", Display: "访问权限"},
			{Tenant: "demo", TicketType: models.TicketTypeRequest, Field: "priority", Value: "high", Display: "高"},
			{Tenant: "demo", TicketType: models.TicketTypeRequest, Field: "priority", Value: "low", Display: "低"},
			{Tenant: "demo", TicketType: models.TicketTypeIncident, Field: "service", Value: "network", Display: "网络"},
			{Tenant: "demo", TicketType: models.TicketTypeIncident, Field: "impact", Value: "site", Display: "站点级"},
		}
		db.Create(&values)
		log.Println("Created default taxonomy values")
	}
}
