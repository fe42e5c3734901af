// Package auth signs the conference owner in when the room requires a
// host to authenticate. Two flows are supported: the application's own
// username/password dialog, and a Shibboleth identity provider that the
// application redirects to.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ConfigEnv names the environment variable holding the config file path.
const ConfigEnv = "MEET_AUTH_CONFIG"

const (
	// HostButtonName is the "I am the host" button of the wait-for-host
	// dialog.
	HostButtonName = "jqi_state0_buttonspandatai18ndialogIamHostIamthehostspan"

	// LoginButtonName is the OK button of the username/password dialog.
	LoginButtonName = "jqi_login_buttonspandatai18ndialogOkOkspan"

	elementTimeout = 15 * time.Second
)

// ErrNotConfigured means no config file was named.
var ErrNotConfigured = errors.New("authentication config file not configured")

// Config holds the selectors and credentials of an authentication flow.
// When none of the IdP fields are set the application's own dialog is
// used.
type Config struct {
	IdPSelectListID  string `yaml:"idp_select_list_id"`
	IdPName          string `yaml:"idp_name"`
	IdPSubmitBtnName string `yaml:"idp_submit_btn_name"`

	UsernameInputID string `yaml:"username_input_id"`
	PasswordInputID string `yaml:"password_input_id"`
	LoginBtnName    string `yaml:"login_btn_name"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// UsesIdP reports whether the Shibboleth flow is configured.
func (c Config) UsesIdP() bool {
	return c.IdPSelectListID != "" || c.IdPName != "" || c.IdPSubmitBtnName != ""
}

// Load reads a YAML config file. An empty path is ErrNotConfigured.
func Load(path string) (Config, error) {
	if path == "" {
		return Config{}, ErrNotConfigured
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read auth config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse auth config %s: %w", path, err)
	}
	if cfg.Username == "" {
		return Config{}, fmt.Errorf("auth config %s: username is required", path)
	}
	return cfg, nil
}

// LoadFromEnv loads the file named by ConfigEnv.
func LoadFromEnv() (Config, error) {
	return Load(os.Getenv(ConfigEnv))
}

// Authenticate clicks through the host dialog on page and signs in.
func Authenticate(ctx context.Context, page *rod.Page, cfg Config, log logrus.FieldLogger) error {
	if log == nil {
		log = logrus.StandardLogger()
	}
	page = page.Context(ctx)

	host, err := waitFor(page, fmt.Sprintf("//button[@name='%s']", HostButtonName))
	if err != nil {
		return err
	}
	if err := click(host); err != nil {
		return fmt.Errorf("failed to click host button: %w", err)
	}

	if !cfg.UsesIdP() {
		log.Info("authenticating with username and password")
		return usernamePassword(page, cfg)
	}

	log.WithField("idp", cfg.IdPName).Info("authenticating through identity provider")
	if err := idpSelect(page, cfg); err != nil {
		return err
	}
	return idpLogin(page, cfg)
}

func usernamePassword(page *rod.Page, cfg Config) error {
	if _, err := waitFor(page, "//input[@name='username']"); err != nil {
		return err
	}
	user, err := page.Element("[name='username']")
	if err != nil {
		return err
	}
	pass, err := page.Element("[name='password']")
	if err != nil {
		return err
	}
	if err := user.Input(cfg.Username); err != nil {
		return fmt.Errorf("failed to enter username: %w", err)
	}
	if err := pass.Input(cfg.Password); err != nil {
		return fmt.Errorf("failed to enter password: %w", err)
	}
	submit, err := page.Element(fmt.Sprintf("[name='%s']", LoginButtonName))
	if err != nil {
		return err
	}
	return click(submit)
}

func idpSelect(page *rod.Page, cfg Config) error {
	input, err := waitFor(page, fmt.Sprintf("//input[@id='%s']", cfg.IdPSelectListID))
	if err != nil {
		return err
	}
	if err := input.Input(cfg.IdPName); err != nil {
		return fmt.Errorf("failed to enter identity provider: %w", err)
	}
	submit, err := page.Element(fmt.Sprintf("[name='%s']", cfg.IdPSubmitBtnName))
	if err != nil {
		return err
	}
	return click(submit)
}

func idpLogin(page *rod.Page, cfg Config) error {
	user, err := waitFor(page, fmt.Sprintf("//input[@id='%s']", cfg.UsernameInputID))
	if err != nil {
		return err
	}
	pass, err := page.Element("#" + cfg.PasswordInputID)
	if err != nil {
		return err
	}
	if err := user.Input(cfg.Username); err != nil {
		return fmt.Errorf("failed to enter username: %w", err)
	}
	if err := pass.Input(cfg.Password); err != nil {
		return fmt.Errorf("failed to enter password: %w", err)
	}
	submit, err := page.Element(fmt.Sprintf("[name='%s']", cfg.LoginBtnName))
	if err != nil {
		return err
	}
	return click(submit)
}

func waitFor(page *rod.Page, xpath string) (*rod.Element, error) {
	el, err := page.Timeout(elementTimeout).ElementX(xpath)
	if err != nil {
		return nil, fmt.Errorf("element %s not found: %w", xpath, err)
	}
	return el.CancelTimeout(), nil
}

func click(el *rod.Element) error {
	return el.Click(proto.InputMouseButtonLeft, 1)
}
