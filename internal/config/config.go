package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey    string
	SystemPrompt    string
	DatabaseURL     string
	PostgresDSN     string
	HTTPPort        string
	LogLevel        string
	JWTSecret       string
	GoogleClientID  string
	GoogleSecret    string
	OAuthBaseURL    string
	ClinicianDomain string
}

var AppConfig Config

// defaultSystemPrompt is the production medical-assistant instruction.
// Operators can swap it wholesale via AI_SYSTEM_PROMPT; it is configuration,
// not logic.
const defaultSystemPrompt = `You are an AI designed to assist users with healthcare-related inquiries, providing detailed insights based on the symptoms they describe, the prescriptions they are taking, and any medical reports they share. Your responses will be reviewed by a professional doctor, so you should provide as much relevant medical detail as possible, ensuring accuracy and completeness without withholding critical information.

When analyzing symptoms, consider all potential causes, ranging from common ailments to more serious conditions. If certain symptoms are commonly associated with emergency conditions, clearly highlight the urgency and recommend immediate medical attention if necessary.

Do not tell anything like "go to a professional doctor" or "i am just an ai, etc".

give a short and crisp response.

If the patient asks you something that is not related to medicine or health or physical health or mental health, respond with: "Please stick to medical questions only."`

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		SystemPrompt:    getEnv("AI_SYSTEM_PROMPT", defaultSystemPrompt),
		DatabaseURL:     getEnv("DATABASE_URL", "caredesk.db"),
		PostgresDSN:     getEnv("POSTGRES_DSN", ""),
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		LogLevel:        getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		GoogleClientID:  getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleSecret:    getEnv("GOOGLE_CLIENT_SECRET", ""),
		OAuthBaseURL:    getEnv("OAUTH_REDIRECT_BASE", "http://localhost:8080"),
		ClinicianDomain: getEnv("CLINICIAN_EMAIL_DOMAIN", ""),
	}

	if AppConfig.GeminiAPIKey == "" {
		log.Fatal("GEMINI_API_KEY environment variable is required")
	}

	if AppConfig.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
