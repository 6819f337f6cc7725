package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string

	SpeechProvider   string
	DeepgramAPIKey   string
	AssemblyAIAPIKey string
	ElevenLabsAPIKey string
	WelcomeVoiceID   string
	LoanVoiceID      string

	TTSProvider string

	LLMProvider     string
	OpenAIAPIKey    string
	OpenAIModelID   string
	CerebrasAPIKey  string
	CerebrasModelID string

	TwilioAccountSID   string
	TwilioAuthToken    string
	SupportPhoneNumber string
	BaseURL            string
	WebsocketURL       string

	CompanyName      string
	WelcomeAgentName string
	LoanAgentName    string

	MailerSendAPIKey    string
	MailerSendFromEmail string

	DecisionRulesAPIKey string
	DecisionRulesRuleID string
	DecisionRulesHost   string

	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseBucket         string
}

// Load reads environment variables and returns Config with sane defaults.
// Missing keys disable the feature they back; the server still starts.
func Load() Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file")
	}

	addr := getEnv("HTTP_ADDRESS", ":8080")

	speechProvider := getEnv("STT_PROVIDER", "deepgram")
	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	assemblyKey := os.Getenv("ASSEMBLYAI_API_KEY")
	if speechProvider == "assemblyai" && assemblyKey == "" {
		log.Println("Warning: ASSEMBLYAI_API_KEY not set - transcription will not work")
	} else if speechProvider != "assemblyai" && deepgramKey == "" {
		log.Println("Warning: DEEPGRAM_API_KEY not set - transcription will not work")
	}

	llmProvider := getEnv("LLM_PROVIDER", "openai")
	openAIKey := os.Getenv("OPENAI_API_KEY")
	openAIModel := getEnv("OPENAI_MODEL_ID", "gpt-4o")
	cerebrasKey := os.Getenv("CEREBRAS_API_KEY")
	cerebrasModel := getEnv("CEREBRAS_MODEL_ID", "llama-3.3-70b")
	if llmProvider == "cerebras" && cerebrasKey == "" {
		log.Println("Warning: CEREBRAS_API_KEY not set - LLM will not work")
	} else if llmProvider != "cerebras" && openAIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set - LLM will not work")
	}

	ttsProvider := getEnv("TTS_PROVIDER", "elevenlabs")
	elevenKey := os.Getenv("ELEVENLABS_API_KEY")
	if ttsProvider == "deepgram" && deepgramKey == "" {
		log.Println("Warning: DEEPGRAM_API_KEY not set - TTS will not work")
	} else if ttsProvider != "deepgram" && elevenKey == "" {
		log.Println("Warning: ELEVENLABS_API_KEY not set - TTS will not work")
	}

	welcomeVoice := os.Getenv("WELCOME_VOICE_ID")
	loanVoice := os.Getenv("LOAN_VOICE_ID")
	if welcomeVoice == "" || loanVoice == "" {
		log.Println("Warning: WELCOME_VOICE_ID or LOAN_VOICE_ID not set - set concrete voice IDs from your ElevenLabs dashboard")
	}

	supportNumber := os.Getenv("SUPPORT_PHONE_NUMBER")
	if supportNumber == "" {
		log.Println("Warning: SUPPORT_PHONE_NUMBER not set - call forwarding disabled")
	}

	mailerSendKey := os.Getenv("MAILERSEND_API_KEY")
	if mailerSendKey == "" {
		log.Println("Warning: MAILERSEND_API_KEY not set - application emails will not be sent")
	}

	decisionKey := firstEnv("DECISION_RULES_API_KEY", "DECISIONRULES_SOLVER_KEY")
	decisionRule := firstEnv("DECISION_RULES_RULE_ID", "DECISIONRULES_RULE_ID")
	if decisionKey == "" || decisionRule == "" {
		log.Println("Warning: DECISION_RULES_API_KEY or DECISION_RULES_RULE_ID not set - loan decisions will fail")
	}

	log.Printf("config: HTTP_ADDRESS=%s", addr)
	return Config{
		HTTPAddress: addr,

		SpeechProvider:   speechProvider,
		DeepgramAPIKey:   deepgramKey,
		AssemblyAIAPIKey: assemblyKey,
		ElevenLabsAPIKey: elevenKey,
		WelcomeVoiceID:   welcomeVoice,
		LoanVoiceID:      loanVoice,

		TTSProvider: ttsProvider,

		LLMProvider:     llmProvider,
		OpenAIAPIKey:    openAIKey,
		OpenAIModelID:   openAIModel,
		CerebrasAPIKey:  cerebrasKey,
		CerebrasModelID: cerebrasModel,

		TwilioAccountSID:   os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:    os.Getenv("TWILIO_AUTH_TOKEN"),
		SupportPhoneNumber: supportNumber,
		BaseURL:            os.Getenv("BASE_URL"),
		WebsocketURL:       os.Getenv("WEBSOCKET_URL"),

		CompanyName:      getEnv("COMPANY_NAME", "AgilityFeat Lending"),
		WelcomeAgentName: getEnv("WELCOME_AGENT_NAME", "Emma"),
		LoanAgentName:    getEnv("LOAN_AGENT_NAME", "Sofia"),

		MailerSendAPIKey:    mailerSendKey,
		MailerSendFromEmail: os.Getenv("MAILERSEND_FROM_EMAIL"),

		DecisionRulesAPIKey: decisionKey,
		DecisionRulesRuleID: decisionRule,
		DecisionRulesHost:   firstEnv("DECISION_RULES_HOST", "DECISIONRULES_HOST"),

		SupabaseURL:            os.Getenv("SUPABASE_URL"),
		SupabaseServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:         getEnv("SUPABASE_BUCKET", "transcripts"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}
