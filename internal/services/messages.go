package services

import (
	"fmt"
	"projectpilot/internal/models"
)

// OffTopicRefusal is the canned reply for prompts outside the project domain
func OffTopicRefusal(language, nickname string) string {
	if language == models.LanguageSpanish {
		return greeting("Lo siento", nickname) + "solo puedo ayudarte con temas de este proyecto: tareas, sprints, backlog, equipo y puntos. ¿Qué quieres saber del proyecto?"
	}
	return greeting("Sorry", nickname) + "I can only help with this project: tasks, sprints, backlog, team and points. What would you like to know about the project?"
}

// FallbackReply is substituted when the language model fails or returns nothing
func FallbackReply(language, nickname string) string {
	if language == models.LanguageSpanish {
		return greeting("Lo siento", nickname) + "no pude generar una respuesta en este momento. Por favor, inténtalo de nuevo en unos segundos."
	}
	return greeting("Sorry", nickname) + "I couldn't generate a response right now. Please try again in a few seconds."
}

func greeting(apology, nickname string) string {
	if nickname == "" {
		return apology + ", "
	}
	return fmt.Sprintf("%s %s, ", apology, nickname)
}
