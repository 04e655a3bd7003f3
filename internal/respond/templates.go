package respond

import (
	"fmt"
	"strings"

	"shopchat/internal/models"
)

// Localized strings the pipeline itself emits. Full storefront translation
// tables live elsewhere; only the messages this package and the orchestrator
// can produce are carried here, for the supported locales.

type localeStrings struct {
	productIntro   string
	noProducts     string
	shipping       string
	returns        string
	trackOrder     string
	help           string
	greeting       string
	limitReached   string
	catalogSession string
	catalogRetry   string
	quickReplies   []string
}

var locales = map[string]localeStrings{
	"en": {
		productIntro:   "Here are some picks from the store:",
		noProducts:     "I couldn't find matching products right now, but feel free to browse the catalog.",
		shipping:       "Most orders ship within 1-2 business days. You'll receive a tracking link by email as soon as your order leaves the warehouse.",
		returns:        "You can return any unworn item within 30 days of delivery. Start a return from the order confirmation email or contact the store for a label.",
		trackOrder:     "You can track your order with the link in your shipping confirmation email. If it hasn't arrived, check your spam folder or contact the store.",
		help:           "I'm happy to help! Ask me about products, shipping, returns or your order.",
		greeting:       "Hi! I'm the shop assistant. Ask me about products, shipping or returns.",
		limitReached:   "This shop's chat is taking a break right now. Please come back later or contact the store directly.",
		catalogSession: "The store's product catalog is currently disconnected. The shop owner needs to reinstall the app to restore product recommendations.",
		catalogRetry:   "I couldn't reach the product catalog just now. Please try again shortly.",
		quickReplies:   []string{"Show bestsellers", "What's new?", "Shipping info", "Return policy"},
	},
	"es": {
		productIntro:   "Aquí tienes algunas sugerencias de la tienda:",
		noProducts:     "No encontré productos que coincidan ahora mismo, pero puedes explorar el catálogo.",
		shipping:       "La mayoría de los pedidos se envían en 1-2 días laborables. Recibirás un enlace de seguimiento por correo.",
		returns:        "Puedes devolver cualquier artículo sin usar dentro de los 30 días posteriores a la entrega.",
		trackOrder:     "Puedes rastrear tu pedido con el enlace del correo de confirmación de envío.",
		help:           "¡Encantado de ayudar! Pregúntame sobre productos, envíos, devoluciones o tu pedido.",
		greeting:       "¡Hola! Soy el asistente de la tienda. Pregúntame sobre productos, envíos o devoluciones.",
		limitReached:   "El chat de esta tienda está en pausa. Vuelve más tarde o contacta con la tienda directamente.",
		catalogSession: "El catálogo de productos está desconectado. El propietario debe reinstalar la aplicación para restaurar las recomendaciones.",
		catalogRetry:   "No pude acceder al catálogo en este momento. Inténtalo de nuevo en unos minutos.",
		quickReplies:   []string{"Ver más vendidos", "Novedades", "Información de envío", "Política de devoluciones"},
	},
	"fr": {
		productIntro:   "Voici quelques suggestions de la boutique :",
		noProducts:     "Je n'ai pas trouvé de produits correspondants pour le moment, mais vous pouvez parcourir le catalogue.",
		shipping:       "La plupart des commandes sont expédiées sous 1 à 2 jours ouvrés. Vous recevrez un lien de suivi par e-mail.",
		returns:        "Vous pouvez retourner tout article non porté dans les 30 jours suivant la livraison.",
		trackOrder:     "Vous pouvez suivre votre commande grâce au lien figurant dans l'e-mail de confirmation d'expédition.",
		help:           "Avec plaisir ! Posez-moi vos questions sur les produits, la livraison ou les retours.",
		greeting:       "Bonjour ! Je suis l'assistant de la boutique. Interrogez-moi sur les produits, la livraison ou les retours.",
		limitReached:   "Le chat de cette boutique est momentanément en pause. Revenez plus tard ou contactez la boutique directement.",
		catalogSession: "Le catalogue produits est déconnecté. Le propriétaire doit réinstaller l'application pour rétablir les recommandations.",
		catalogRetry:   "Je n'ai pas pu joindre le catalogue produits. Veuillez réessayer dans quelques instants.",
		quickReplies:   []string{"Meilleures ventes", "Nouveautés", "Livraison", "Politique de retour"},
	},
	"de": {
		productIntro:   "Hier sind einige Vorschläge aus dem Shop:",
		noProducts:     "Ich konnte gerade keine passenden Produkte finden, aber stöbere gerne im Katalog.",
		shipping:       "Die meisten Bestellungen werden innerhalb von 1-2 Werktagen versendet. Du erhältst einen Tracking-Link per E-Mail.",
		returns:        "Du kannst jeden ungetragenen Artikel innerhalb von 30 Tagen nach Lieferung zurückgeben.",
		trackOrder:     "Du kannst deine Bestellung über den Link in der Versandbestätigung verfolgen.",
		help:           "Gerne! Frag mich zu Produkten, Versand, Rücksendungen oder deiner Bestellung.",
		greeting:       "Hallo! Ich bin der Shop-Assistent. Frag mich zu Produkten, Versand oder Rücksendungen.",
		limitReached:   "Der Chat dieses Shops macht gerade Pause. Komm später wieder oder kontaktiere den Shop direkt.",
		catalogSession: "Der Produktkatalog ist getrennt. Der Shop-Inhaber muss die App neu installieren, um Empfehlungen wiederherzustellen.",
		catalogRetry:   "Ich konnte den Produktkatalog gerade nicht erreichen. Bitte versuche es gleich noch einmal.",
		quickReplies:   []string{"Bestseller zeigen", "Neuheiten", "Versandinfo", "Rückgaberecht"},
	},
	"pt": {
		productIntro:   "Aqui estão algumas sugestões da loja:",
		noProducts:     "Não encontrei produtos correspondentes agora, mas fique à vontade para explorar o catálogo.",
		shipping:       "A maioria dos pedidos é enviada em 1-2 dias úteis. Você receberá um link de rastreamento por e-mail.",
		returns:        "Você pode devolver qualquer item sem uso em até 30 dias após a entrega.",
		trackOrder:     "Você pode rastrear seu pedido pelo link no e-mail de confirmação de envio.",
		help:           "Fico feliz em ajudar! Pergunte sobre produtos, envio, devoluções ou seu pedido.",
		greeting:       "Olá! Sou o assistente da loja. Pergunte sobre produtos, envio ou devoluções.",
		limitReached:   "O chat desta loja está em pausa. Volte mais tarde ou contate a loja diretamente.",
		catalogSession: "O catálogo de produtos está desconectado. O dono da loja precisa reinstalar o aplicativo para restaurar as recomendações.",
		catalogRetry:   "Não consegui acessar o catálogo de produtos agora. Tente novamente em instantes.",
		quickReplies:   []string{"Ver mais vendidos", "Novidades", "Informações de envio", "Política de devolução"},
	},
}

func stringsFor(lang string) localeStrings {
	if ls, ok := locales[lang]; ok {
		return ls
	}
	return locales["en"]
}

// LimitMessage is the quota-exceeded text shown to shoppers.
func LimitMessage(lang string) string { return stringsFor(lang).limitReached }

// CatalogSessionMessage tells the shopper the storefront connection is broken
// and needs administrative reinstallation.
func CatalogSessionMessage(lang string) string { return stringsFor(lang).catalogSession }

// CatalogTransientMessage asks the shopper to retry shortly.
func CatalogTransientMessage(lang string) string { return stringsFor(lang).catalogRetry }

// DefaultQuickReplies returns the locale's standard quick-reply chips.
func DefaultQuickReplies(lang string) []string {
	qr := stringsFor(lang).quickReplies
	out := make([]string, len(qr))
	copy(out, qr)
	return out
}

// fallbackText synthesizes the deterministic per-intent reply.
func fallbackText(lang string, intent models.Intent, products []models.ProductCandidate) string {
	ls := stringsFor(lang)
	switch intent {
	case models.IntentShipping:
		return ls.shipping
	case models.IntentReturns:
		return ls.returns
	case models.IntentTrackOrder:
		return ls.trackOrder
	case models.IntentHelp:
		return ls.help
	}
	if intent.IsProduct() {
		if len(products) == 0 {
			return ls.noProducts
		}
		var b strings.Builder
		b.WriteString(ls.productIntro)
		for i, p := range products {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&b, " %s (%s).", p.Title, p.Price)
		}
		return b.String()
	}
	return ls.greeting
}
