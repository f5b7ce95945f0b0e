package chat

import (
	"hash/fnv"
	"strings"
)

// OffTopicReply steers visitors back to the site's services.
const OffTopicReply = "Я специализируюсь на digital-услугах. Могу помочь с вопросами о разработке, дизайне и AI-решениях. Что вас интересует?"

var cannedReplies = [...]string{
	"Я AI-ассистент NeuroExpert и могу помочь с вопросами о цифровых услугах. Расскажите, что вас интересует?",
	"Я специализирую на digital-трансформации. Могу рассказать об услугах, аудите или разработке. Что именно вас интересует?",
	"Я здесь, чтобы помочь с вопросами о наших услугах. Спросите меня о разработке, дизайне или AI-решениях.",
}

var offTopicKeywords = []string{"погода", "новости", "спорт", "фильмы", "музыка"}

// FallbackReply answers without a model. The reply depends only on the
// message.
func FallbackReply(message string) string {
	lower := strings.ToLower(message)
	for _, kw := range offTopicKeywords {
		if strings.Contains(lower, kw) {
			return OffTopicReply
		}
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(message))
	return cannedReplies[h.Sum32()%uint32(len(cannedReplies))]
}
