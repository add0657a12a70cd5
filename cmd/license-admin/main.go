package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"license-server/config"
	"license-server/internal/database"
	"license-server/internal/license"
)

func main() {
	fmt.Println("========================================")
	fmt.Println(" License Administration Tool")
	fmt.Println("========================================")

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		fmt.Printf("Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := database.NewRepository(db)
	service := license.NewService(repo)
	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Println("\nOptions:")
		fmt.Println("  1. Issue single license key")
		fmt.Println("  2. Issue batch license keys")
		fmt.Println("  3. Reset device lock")
		fmt.Println("  4. Run expiry sweep")
		fmt.Println("  5. Show dashboard stats")
		fmt.Println("  6. Exit")
		fmt.Print("\nSelect option: ")

		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(input)

		switch input {
		case "1":
			issueSingle(service, reader)
		case "2":
			issueBatch(service, reader)
		case "3":
			resetDevice(service, repo, reader)
		case "4":
			runSweep(service)
		case "5":
			showStats(service)
		case "6":
			fmt.Println("Goodbye!")
			os.Exit(0)
		default:
			fmt.Println("Invalid option")
		}
	}
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func promptExpiry(reader *bufio.Reader) (time.Time, bool) {
	daysStr := prompt(reader, "Valid for how many days? ")
	days, err := strconv.Atoi(daysStr)
	if err != nil || days < 1 {
		fmt.Println("Invalid number of days")
		return time.Time{}, false
	}
	return time.Now().AddDate(0, 0, days), true
}

func issueSingle(service *license.Service, reader *bufio.Reader) {
	fmt.Println("\n--- Issue License Key ---")

	req := license.IssueRequest{
		GameID:        prompt(reader, "Game ID: "),
		CustomerName:  prompt(reader, "Customer name: "),
		CustomerEmail: prompt(reader, "Customer email (optional): "),
		Notes:         prompt(reader, "Notes (optional): "),
		CreatedBy:     prompt(reader, "Issuing user ID: "),
	}

	expiresAt, ok := promptExpiry(reader)
	if !ok {
		return
	}
	req.ExpiresAt = expiresAt

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	lk, err := service.Issue(ctx, req)
	if err != nil {
		fmt.Printf("Issuance failed: %v\n", err)
		return
	}

	fmt.Println("\n========================================")
	fmt.Printf("  License Key: %s\n", lk.Key)
	fmt.Printf("  Customer:    %s\n", lk.CustomerName)
	fmt.Printf("  Expires:     %s\n", lk.ExpiresAt.Format("2006-01-02 15:04:05"))
	fmt.Println("========================================")
}

func issueBatch(service *license.Service, reader *bufio.Reader) {
	fmt.Println("\n--- Issue Batch License Keys ---")

	gameID := prompt(reader, "Game ID: ")
	createdBy := prompt(reader, "Issuing user ID: ")
	countStr := prompt(reader, "How many keys? ")
	count, err := strconv.Atoi(countStr)
	if err != nil || count < 1 || count > 500 {
		fmt.Println("Invalid count (1-500)")
		return
	}

	namePrefix := prompt(reader, "Customer name prefix: ")
	names := make([]string, count)
	for i := range names {
		names[i] = fmt.Sprintf("%s-%03d", namePrefix, i+1)
	}

	expiresAt, ok := promptExpiry(reader)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	issued, err := service.IssueBulk(ctx, license.BulkIssueRequest{
		GameID:        gameID,
		CustomerNames: names,
		ExpiresAt:     expiresAt,
		CreatedBy:     createdBy,
	})
	if err != nil {
		fmt.Printf("Batch failed after %d keys: %v\n", len(issued), err)
	}

	fmt.Printf("\nIssued %d keys:\n", len(issued))
	for _, lk := range issued {
		fmt.Printf("  %s  %s\n", lk.Key, lk.CustomerName)
	}

	if save := prompt(reader, "\nSave to file? (y/n): "); strings.ToLower(save) == "y" {
		filename := fmt.Sprintf("keys_%s.txt", time.Now().Format("20060102_150405"))
		var sb strings.Builder
		for _, lk := range issued {
			sb.WriteString(fmt.Sprintf("%s\t%s\n", lk.Key, lk.CustomerName))
		}
		if err := os.WriteFile(filename, []byte(sb.String()), 0644); err != nil {
			fmt.Printf("Failed to save: %v\n", err)
			return
		}
		fmt.Printf("Saved to: %s\n", filename)
	}
}

func resetDevice(service *license.Service, repo *database.Repository, reader *bufio.Reader) {
	fmt.Println("\n--- Reset Device Lock ---")

	key := prompt(reader, "License key: ")
	adminID := prompt(reader, "Your admin user ID: ")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	lk, err := repo.GetLicenseKeyByKey(ctx, key)
	if err != nil {
		fmt.Printf("Lookup failed: %v\n", err)
		return
	}
	if lk == nil {
		fmt.Println("License key not found")
		return
	}

	if err := service.ResetDeviceLock(ctx, lk.ID, adminID); err != nil {
		fmt.Printf("Reset failed: %v\n", err)
		return
	}

	fmt.Println("Device lock cleared. The next activation from any device will succeed.")
}

func runSweep(service *license.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	n, err := service.SweepExpired(ctx)
	if err != nil {
		fmt.Printf("Sweep failed: %v\n", err)
		return
	}
	fmt.Printf("Marked %d keys as expired.\n", n)
}

func showStats(service *license.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stats, err := service.DashboardStats(ctx)
	if err != nil {
		fmt.Printf("Stats failed: %v\n", err)
		return
	}

	fmt.Println("\n========================================")
	fmt.Printf("  Active resellers:     %d\n", stats.TotalResellers)
	fmt.Printf("  Active keys:          %d\n", stats.TotalActiveKeys)
	fmt.Printf("  Expired keys:         %d\n", stats.TotalExpiredKeys)
	fmt.Printf("  Logins today (UTC):   %d\n", stats.TotalLoginsToday)
	fmt.Printf("  Expiring in 3 days:   %d\n", stats.ExpiringKeys3Days)
	fmt.Println("========================================")
}
