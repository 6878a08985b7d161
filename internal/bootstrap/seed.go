package bootstrap

import (
	"log"

	"github.com/google/uuid"
	"github.com/openfantasy/leagueserver/internal/model"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Role{},
		&model.User{},
		&model.Profile{},
		&model.Wallet{},
		&model.WalletTransaction{},
		&model.League{},
		&model.LeagueMembership{},
		&model.LeaderboardEntry{},
	)
}

func SeedRoles(db *gorm.DB) error {
	defaultRoles := []model.Role{
		{Name: "admin", Description: "Super administrator"},
		{Name: "manager", Description: "Fantasy team manager"},
	}

	for _, role := range defaultRoles {
		var count int64
		if err := db.Model(&model.Role{}).
			Where("name = ?", role.Name).
			Count(&count).Error; err != nil {
			return err
		}

		if count == 0 {
			if err := db.Create(&role).Error; err != nil {
				return err
			}
		}
	}

	return nil
}

// SeedDemoData creates an admin user with a demo league and some standings.
// Development only.
func SeedDemoData(db *gorm.DB) error {
	var adminRole model.Role
	if err := db.Where("name = ?", "admin").First(&adminRole).Error; err != nil {
		return err
	}

	var count int64
	if err := db.Model(&model.User{}).
		Where("email = ?", "admin@example.com").
		Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("Admin user already exists, skipping seed")
		return nil
	}

	password := "admin123"
	hashedPasswordBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	adminUser := model.User{
		Username:     "admin",
		Email:        "admin@example.com",
		PasswordHash: string(hashedPasswordBytes),
		RoleID:       &adminRole.ID,
	}

	if err := db.Create(&adminUser).Error; err != nil {
		return err
	}

	adminProfile := model.Profile{
		UserID:   adminUser.ID,
		TeamName: "Admin FC",
	}

	if err := db.Create(&adminProfile).Error; err != nil {
		return err
	}

	wallet := model.Wallet{UserID: adminUser.ID, Balance: 10_000}
	if err := db.Create(&wallet).Error; err != nil {
		return err
	}

	demoLeague := model.League{
		Name:        "Demo League",
		Description: "Seeded league for local development",
		State:       model.StateInProgress,
		InviteCode:  "DEMO2026",
		Season:      "2026/27",
		OwnerID:     adminUser.ID,
	}

	if err := db.Create(&demoLeague).Error; err != nil {
		return err
	}

	membership := model.LeagueMembership{
		LeagueID: demoLeague.ID,
		UserID:   adminUser.ID,
		TeamName: "Admin FC",
	}

	if err := db.Create(&membership).Error; err != nil {
		return err
	}

	entries := []model.LeaderboardEntry{
		{LeagueID: demoLeague.ID, Rank: 1, Username: "admin", TeamName: "Admin FC", TotalPoints: 120, GameweekPoints: 55},
		{LeagueID: demoLeague.ID, Rank: 2, Username: "rival_1", TeamName: "Rival Rovers", TotalPoints: 110, GameweekPoints: 48, LinkedTeamID: ptrUUID(uuid.New())},
		{LeagueID: demoLeague.ID, Rank: 3, Username: "rival_2", TeamName: "Bench Warmers", TotalPoints: 95, GameweekPoints: 40},
	}

	if err := db.Create(&entries).Error; err != nil {
		return err
	}

	log.Println("✅ Demo data seeded")
	log.Println("   Email: admin@example.com")
	log.Println("   Password: admin123")

	return nil
}

func ptrUUID(id uuid.UUID) *uuid.UUID {
	return &id
}
