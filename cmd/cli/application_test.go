package cli_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tyemirov/iteehub/cmd/cli"
)

const (
	testConfigurationFileNameConstant          = "config.yaml"
	testApplicationNameConstant                = "iteehub"
	testUserHomeEnvironmentNameConstant        = "HOME"
	testSearchPathEnvironmentNameConstant      = "ITEEHUB_CONFIG_SEARCH_PATH"
	testUserConfigurationDirectoryNameConstant = ".iteehub"
	testExistingConfigurationContentConstant   = "common:\n  log_level: error\n"
	testQuestionPageTemplateConstant           = `<html><body><table>
<tr><td><span>Exam</span></td></tr>
<tr><td><div>2024 April</div></td><td><div><a href="fe/2024A_FE.zip">zip</a></div></td></tr>
</table></body></html>`
	testArchiveContentConstant = "zip-bytes"
)

func runApplication(testInstance *testing.T, arguments ...string) error {
	testInstance.Helper()
	originalArguments := os.Args
	os.Args = append([]string{testApplicationNameConstant}, arguments...)
	testInstance.Cleanup(func() {
		os.Args = originalArguments
	})
	return cli.NewApplication().Execute()
}

func changeWorkingDirectory(testInstance *testing.T, directory string) {
	testInstance.Helper()
	originalWorkingDirectory, workingDirectoryError := os.Getwd()
	require.NoError(testInstance, workingDirectoryError)
	require.NoError(testInstance, os.Chdir(directory))
	testInstance.Cleanup(func() {
		require.NoError(testInstance, os.Chdir(originalWorkingDirectory))
	})
}

func writeConfigurationFile(testInstance *testing.T, configurationPath string, configurationContent string) {
	testInstance.Helper()
	require.NoError(testInstance, os.MkdirAll(filepath.Dir(configurationPath), 0o755))
	require.NoError(testInstance, os.WriteFile(configurationPath, []byte(configurationContent), 0o600))
}

func TestApplicationConfigurationInitializationCreatesConfiguration(testInstance *testing.T) {
	embeddedConfigurationContent, _ := cli.EmbeddedDefaultConfiguration()
	require.NotEmpty(testInstance, embeddedConfigurationContent)

	testCases := []struct {
		name      string
		arguments []string
		setup     func(*testing.T) string
	}{
		{
			name:      "local_scope",
			arguments: []string{"--init"},
			setup: func(testInstance *testing.T) string {
				workingDirectory := testInstance.TempDir()
				changeWorkingDirectory(testInstance, workingDirectory)
				return filepath.Join(workingDirectory, testConfigurationFileNameConstant)
			},
		},
		{
			name:      "user_scope",
			arguments: []string{"--init=user"},
			setup: func(testInstance *testing.T) string {
				changeWorkingDirectory(testInstance, testInstance.TempDir())
				homeDirectory := testInstance.TempDir()
				testInstance.Setenv(testUserHomeEnvironmentNameConstant, homeDirectory)
				return filepath.Join(homeDirectory, testUserConfigurationDirectoryNameConstant, testConfigurationFileNameConstant)
			},
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf("%d_%s", testCaseIndex, testCase.name), func(testInstance *testing.T) {
			expectedConfigurationPath := testCase.setup(testInstance)

			require.NoError(testInstance, runApplication(testInstance, append(testCase.arguments, "--log-level", "error")...))

			fileContent, readError := os.ReadFile(expectedConfigurationPath)
			require.NoError(testInstance, readError)
			require.Equal(testInstance, embeddedConfigurationContent, fileContent)
		})
	}
}

func TestApplicationConfigurationInitializationForceHandling(testInstance *testing.T) {
	embeddedConfigurationContent, _ := cli.EmbeddedDefaultConfiguration()

	testCases := []struct {
		name        string
		arguments   []string
		expectError bool
	}{
		{name: "force_required", arguments: []string{"--init", "--log-level", "error"}, expectError: true},
		{name: "force_enabled", arguments: []string{"--init", "--force", "--log-level", "error"}},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			workingDirectory := testInstance.TempDir()
			changeWorkingDirectory(testInstance, workingDirectory)
			configurationPath := filepath.Join(workingDirectory, testConfigurationFileNameConstant)
			writeConfigurationFile(testInstance, configurationPath, testExistingConfigurationContentConstant)

			executionError := runApplication(testInstance, testCase.arguments...)

			fileContent, readError := os.ReadFile(configurationPath)
			require.NoError(testInstance, readError)
			if testCase.expectError {
				require.ErrorContains(testInstance, executionError, "already exists")
				require.Equal(testInstance, testExistingConfigurationContentConstant, string(fileContent))
				return
			}
			require.NoError(testInstance, executionError)
			require.Equal(testInstance, embeddedConfigurationContent, fileContent)
		})
	}
}

func TestApplicationConfigurationSearchPaths(testInstance *testing.T) {
	testCases := []struct {
		name          string
		setup         func(*testing.T) string
		expectedLevel string
	}{
		{
			name: "working_directory",
			setup: func(testInstance *testing.T) string {
				workingDirectory := testInstance.TempDir()
				changeWorkingDirectory(testInstance, workingDirectory)
				testInstance.Setenv(testUserHomeEnvironmentNameConstant, testInstance.TempDir())
				configurationPath := filepath.Join(workingDirectory, testConfigurationFileNameConstant)
				writeConfigurationFile(testInstance, configurationPath, "common:\n  log_level: warn\n  log_file: \"\"\n")
				return configurationPath
			},
			expectedLevel: "warn",
		},
		{
			name: "home_directory",
			setup: func(testInstance *testing.T) string {
				changeWorkingDirectory(testInstance, testInstance.TempDir())
				homeDirectory := testInstance.TempDir()
				testInstance.Setenv(testUserHomeEnvironmentNameConstant, homeDirectory)
				testInstance.Setenv("XDG_CONFIG_HOME", "")
				configurationPath := filepath.Join(homeDirectory, testUserConfigurationDirectoryNameConstant, testConfigurationFileNameConstant)
				writeConfigurationFile(testInstance, configurationPath, "common:\n  log_level: debug\n  log_file: \"\"\n")
				return configurationPath
			},
			expectedLevel: "debug",
		},
		{
			name: "search_path_override",
			setup: func(testInstance *testing.T) string {
				changeWorkingDirectory(testInstance, testInstance.TempDir())
				overrideDirectory := testInstance.TempDir()
				testInstance.Setenv(testSearchPathEnvironmentNameConstant, overrideDirectory)
				configurationPath := filepath.Join(overrideDirectory, testConfigurationFileNameConstant)
				writeConfigurationFile(testInstance, configurationPath, "common:\n  log_level: error\n  log_file: \"\"\n")
				return configurationPath
			},
			expectedLevel: "error",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			expectedConfigurationPath := testCase.setup(testInstance)

			application := cli.NewApplication()
			require.NoError(testInstance, application.InitializeForCommand("update"))

			require.Equal(testInstance, resolveSymlinkedPath(testInstance, expectedConfigurationPath), resolveSymlinkedPath(testInstance, application.ConfigFileUsed()))
			require.Equal(testInstance, testCase.expectedLevel, application.Configuration().Common.LogLevel)
		})
	}
}

func TestApplicationEnvironmentPrecedence(testInstance *testing.T) {
	testCases := []struct {
		name          string
		environment   map[string]string
		expectedToken string
		expectedChat  string
	}{
		{
			name:          "embedded_defaults",
			expectedToken: "",
			expectedChat:  "",
		},
		{
			name:          "unprefixed_aliases",
			environment:   map[string]string{"TELEGRAM_BOT_TOKEN": "alias-token", "TELEGRAM_CHAT_ID": "@itee"},
			expectedToken: "alias-token",
			expectedChat:  "@itee",
		},
		{
			name: "prefixed_environment_wins",
			environment: map[string]string{
				"TELEGRAM_BOT_TOKEN":       "alias-token",
				"ITEEHUB_TELEGRAM_TOKEN":   "prefixed-token",
				"ITEEHUB_TELEGRAM_CHAT_ID": "-100",
			},
			expectedToken: "prefixed-token",
			expectedChat:  "-100",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			changeWorkingDirectory(testInstance, testInstance.TempDir())
			testInstance.Setenv(testSearchPathEnvironmentNameConstant, testInstance.TempDir())
			testInstance.Setenv("ITEEHUB_COMMON_LOG_FILE", filepath.Join(testInstance.TempDir(), "iteehub.log"))
			for _, name := range []string{"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "ITEEHUB_TELEGRAM_TOKEN", "ITEEHUB_TELEGRAM_CHAT_ID"} {
				testInstance.Setenv(name, "")
			}
			for name, value := range testCase.environment {
				testInstance.Setenv(name, value)
			}

			application := cli.NewApplication()
			require.NoError(testInstance, application.InitializeForCommand("run"))

			configuration := application.Configuration()
			require.Equal(testInstance, testCase.expectedToken, configuration.Telegram.Token)
			require.Equal(testInstance, testCase.expectedChat, configuration.Telegram.ChatID)
			require.Equal(testInstance, "0 0,12 * * *", configuration.Schedule.Cron)
		})
	}
}

func TestApplicationRejectsInvalidConfiguration(testInstance *testing.T) {
	changeWorkingDirectory(testInstance, testInstance.TempDir())
	configurationPath := filepath.Join(testInstance.TempDir(), testConfigurationFileNameConstant)
	writeConfigurationFile(testInstance, configurationPath, "common:\n  log_file: \"\"\ncommit:\n  backend: libgit2\n")

	executionError := runApplication(testInstance, "--config", configurationPath, "commit")
	require.ErrorContains(testInstance, executionError, "invalid configuration")
}

func TestApplicationUpdateQuestionsDownloadsArchives(testInstance *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		switch request.URL.Path {
		case "/pastexamqa/fe.html":
			responseWriter.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = responseWriter.Write([]byte(testQuestionPageTemplateConstant))
		case "/pastexamqa/fe/2024A_FE.zip":
			responseWriter.Header().Set("Last-Modified", "Sun, 21 Apr 2024 09:00:00 GMT")
			_, _ = responseWriter.Write([]byte(testArchiveContentConstant))
		default:
			http.NotFound(responseWriter, request)
		}
	}))
	defer server.Close()

	workspace := testInstance.TempDir()
	changeWorkingDirectory(testInstance, workspace)
	dataDirectory := filepath.Join(workspace, "data")
	configurationPath := filepath.Join(workspace, testConfigurationFileNameConstant)
	writeConfigurationFile(testInstance, configurationPath, fmt.Sprintf(`common:
  log_level: error
  log_format: structured
  log_file: %s
data:
  directory: %s
  database: %s
sources:
  fe_questions_url: %s/pastexamqa/fe.html
  ip_questions_url: ""
  results_url: %s/statsandresults/all-passers.html
  user_agent: iteehub-test
`, filepath.Join(workspace, "logs", "iteehub.log"), dataDirectory, filepath.Join(dataDirectory, "data.db"), server.URL, server.URL))

	require.NoError(testInstance, runApplication(testInstance, "--config", configurationPath, "update", "--update-questions"))

	archiveContent, readError := os.ReadFile(filepath.Join(dataDirectory, "2024", "questions", "2024A_FE.zip"))
	require.NoError(testInstance, readError)
	require.Equal(testInstance, testArchiveContentConstant, string(archiveContent))
	require.FileExists(testInstance, filepath.Join(dataDirectory, "data.db"))
	require.FileExists(testInstance, filepath.Join(workspace, "logs", "iteehub.log"))
}

func TestApplicationUpdateTelegramRequiresToken(testInstance *testing.T) {
	workspace := testInstance.TempDir()
	changeWorkingDirectory(testInstance, workspace)
	testInstance.Setenv("TELEGRAM_BOT_TOKEN", "")
	testInstance.Setenv("ITEEHUB_TELEGRAM_TOKEN", "")
	configurationPath := filepath.Join(workspace, testConfigurationFileNameConstant)
	writeConfigurationFile(testInstance, configurationPath, fmt.Sprintf("common:\n  log_level: error\n  log_file: \"\"\ndata:\n  directory: %s\n  database: %s\n",
		filepath.Join(workspace, "data"), filepath.Join(workspace, "data", "data.db")))

	executionError := runApplication(testInstance, "--config", configurationPath, "update", "--update-telegram", "@itee")
	require.ErrorContains(testInstance, executionError, "TELEGRAM_BOT_TOKEN")
}

func resolveSymlinkedPath(testInstance *testing.T, candidatePath string) string {
	testInstance.Helper()
	resolvedPath, resolveError := filepath.EvalSymlinks(candidatePath)
	if resolveError != nil {
		return candidatePath
	}
	return resolvedPath
}
