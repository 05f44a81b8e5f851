package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/store-incident-api/internal/models"
	"github.com/noah-isme/store-incident-api/internal/repository"
)

const maxUsernameLength = 19

func newUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User administration",
	}

	var username, password, fullName, role string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an active user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := newUser(username, password, fullName, role)
			if err != nil {
				return err
			}

			env, err := openEnvironment()
			if err != nil {
				return err
			}
			defer env.Close()

			if err := repository.NewUserRepository(env.db).Create(cmd.Context(), user); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id %d, role %s)\n", user.Username, user.ID, user.Role)
			return nil
		},
	}
	create.Flags().StringVar(&username, "username", "", "Login name")
	create.Flags().StringVar(&password, "password", "", "Initial password")
	create.Flags().StringVar(&fullName, "name", "", "Display name")
	create.Flags().StringVar(&role, "role", string(models.RoleUser), "SUPERADMIN, ADMIN or USER")
	_ = create.MarkFlagRequired("username")
	_ = create.MarkFlagRequired("password")

	cmd.AddCommand(create)
	return cmd
}

func newUser(username, password, fullName, role string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(username) > maxUsernameLength {
		return nil, fmt.Errorf("username must be 1-%d characters", maxUsernameLength)
	}
	if password == "" {
		return nil, fmt.Errorf("password is required")
	}

	r := models.UserRole(strings.ToUpper(role))
	switch r {
	case models.RoleSuperAdmin, models.RoleAdmin, models.RoleUser:
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return &models.User{
		Username:     username,
		PasswordHash: string(hash),
		FullName:     fullName,
		Role:         r,
		IsActive:     true,
	}, nil
}
