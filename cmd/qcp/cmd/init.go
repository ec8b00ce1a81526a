// cmd/qcp/cmd/init.go
package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"qcpsync/internal/domain/script"
	"qcpsync/internal/sfdc"
)

var (
	initOrgType string
	initURL     string
)

var orgTypes = []struct {
	orgType script.OrgType
	descr   string
}{
	{script.OrgTypeSandbox, "https://test.salesforce.com"},
	{script.OrgTypeDeveloper, "https://login.salesforce.com"},
	{script.OrgTypeProduction, "https://login.salesforce.com"},
	{script.OrgTypeCustomURL, "https://{domain}.my.salesforce.com"},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Привязать проект к организации Salesforce",
	Long: `Запускает авторизацию OAuth в браузере и сохраняет полученные
токены в зашифрованную конфигурацию проекта.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		orgType, err := resolveOrgType()
		if err != nil {
			return err
		}
		if orgType == script.OrgTypeCustomURL && initURL == "" {
			initURL = cfg.LoginURL
		}
		if orgType == script.OrgTypeCustomURL && initURL == "" {
			fmt.Print("Введите URL организации (https://domain.my.salesforce.com): ")
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("ошибка чтения ввода: %w", err)
			}
			initURL = strings.TrimSpace(line)
		}

		err = app.InitOrg(cmd.Context(), orgType, initURL, browserAuthenticator)
		if err != nil {
			return err
		}

		orgInfo := app.ConfigData().OrgInfo
		fmt.Println()
		fmt.Printf("✅ Проект привязан к организации, пользователь %s\n", orgInfo.Username)
		return nil
	},
}

func resolveOrgType() (script.OrgType, error) {
	if initOrgType != "" {
		switch strings.ToLower(initOrgType) {
		case "sandbox":
			return script.OrgTypeSandbox, nil
		case "developer", "dev":
			return script.OrgTypeDeveloper, nil
		case "production", "prod":
			return script.OrgTypeProduction, nil
		case "custom":
			return script.OrgTypeCustomURL, nil
		}
		return "", fmt.Errorf("неизвестный тип организации: %s", initOrgType)
	}

	fmt.Println("Выберите тип организации:")
	for i, item := range orgTypes {
		fmt.Printf("  %d. %-12s %s\n", i+1, item.orgType, item.descr)
	}
	fmt.Print("Ваш выбор [1-4]: ")

	var choice int
	if _, err := fmt.Scanln(&choice); err != nil || choice < 1 || choice > len(orgTypes) {
		return "", fmt.Errorf("неверный выбор")
	}
	return orgTypes[choice-1].orgType, nil
}

// browserAuthenticator печатает URL авторизации и принимает URL
// редиректа, который пользователь копирует из браузера. Ввод не
// отображается - fragment содержит токены.
func browserAuthenticator(authorizeURL string) (*sfdc.AuthInfo, error) {
	fmt.Println()
	fmt.Println("Откройте в браузере и войдите в организацию:")
	color.New(color.FgCyan).Println("  " + authorizeURL)
	fmt.Println()
	fmt.Print("Вставьте URL страницы, на которую вас перенаправило: ")

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения ввода: %w", err)
	}

	return sfdc.ParseAuthCallback(strings.TrimSpace(string(raw)))
}

func init() {
	initCmd.Flags().StringVar(&initOrgType, "org-type", "", "тип организации (sandbox, developer, production, custom)")
	initCmd.Flags().StringVar(&initURL, "url", "", "URL организации для типа custom")

	rootCmd.AddCommand(initCmd)
}
