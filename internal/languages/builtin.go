package languages

var builtin = map[string]string{
	"af": "Afrikaans", "sq": "Albanian", "ar": "Arabic", "hy": "Armenian",
	"bn": "Bengali", "bg": "Bulgarian", "zh-HK": "Cantonese", "ca": "Catalan",
	"zh-CN": "Chinese (Simplified)", "zh-TW": "Chinese (Traditional)",
	"hr": "Croatian", "cs": "Czech", "da": "Danish", "nl": "Dutch",
	"en": "English (US)", "en-AU": "English (AU)", "en-GB": "English (UK)",
	"et": "Estonian", "fi": "Finnish", "fr": "French (FR)", "fr-CA": "French (CA)",
	"ka": "Georgian", "de": "German", "el": "Greek", "gu": "Gujarati",
	"he": "Hebrew", "hi": "Hindi", "hu": "Hungarian", "is": "Icelandic",
	"id": "Indonesian", "ga": "Irish", "it": "Italian", "ja": "Japanese",
	"kn": "Kannada", "ko": "Korean", "lv": "Latvian", "lt": "Lithuanian",
	"mk": "Macedonian", "ms": "Malay", "mt": "Maltese", "no": "Norwegian",
	"fa": "Persian", "pl": "Polish", "pt": "Portuguese (PT)", "pt-BR": "Portuguese (BR)",
	"ro": "Romanian", "ru": "Russian", "sr": "Serbian", "sk": "Slovak",
	"sl": "Slovenian", "es": "Spanish (ES)", "es-MX": "Spanish (MX)",
	"sv": "Swedish", "tl": "Tagalog", "th": "Thai", "tr": "Turkish",
	"uk": "Ukrainian", "vi": "Vietnamese", "cy": "Welsh", "pa": "Punjabi",
	"sw": "Swahili", "ta": "Tamil", "ur": "Urdu", "zh": "Chinese",
}
