package provider

var userAgents = []string{
	"Dalvik/2.1.0 (Linux; U; Android 5.0.2; VS980 4G Build/LRX22G)",
	"Dalvik/1.6.0 (Linux; U; Android 4.4.2; SM-T210 Build/KOT49H)",
	"Dalvik/2.1.0 (Linux; U; Android 5.1.1; SM-P905V Build/LMY47X)",
	"Dalvik/1.6.0 (Linux; U; Android 4.4.4; Vodafone Smart Tab 4G Build/KTU84P)",
	"Dalvik/2.1.0 (Linux; U; Android 5.0.2; SM-G920F Build/LRX22G)",
	"Dalvik/2.1.0 (Linux; U; Android 6.0.1; SM-G900F Build/MMB29M)",
	"Dalvik/2.1.0 (Linux; U; Android 7.0; SM-G930F Build/NRD90M)",
	"Dalvik/2.1.0 (Linux; U; Android 5.1.1; SM-G920F Build/LMY47X)",
	"Dalvik/2.1.0 (Linux; U; Android 6.0; E5803 Build/32.1.A.1.185)",
	"Dalvik/2.1.0 (Linux; U; Android 5.1; XT1562 Build/LPDS23.47-39)",
	"Dalvik/2.1.0 (Linux; U; Android 7.1.1; Nexus 5X Build/N4F26T)",
	"Dalvik/2.1.0 (Linux; U; Android 8.0.0; SM-G950F Build/R16NW)",
	"Dalvik/2.1.0 (Linux; U; Android 9; Pixel 2 Build/PQ3A.190801.002)",
	"Dalvik/2.1.0 (Linux; U; Android 10; SM-A505F Build/QP1A.190711.020)",
}
