// Package tokensource performs the CRM's OAuth2 token exchanges.
//
// The CRM's token endpoint deviates from the standard in two ways that require
// custom handling:
//   - Token exchange and refresh use JSON-encoded requests (standard OAuth2 uses form-encoding)
//   - redirect_uri is required on refresh requests too, not only on code exchange
//
// Both exchanges go through golang.org/x/oauth2 with a RoundTripper that rewrites
// the request body.
//
//	ex, err := tokensource.NewExchanger(tokensource.Config{
//		BaseURL:      "https://example.amocrm.ru",
//		ClientID:     clientID,
//		ClientSecret: clientSecret,
//		RedirectURI:  "https://example.com/oauth",
//	})
//	tok, err := ex.Refresh(ctx, storedRefreshToken)
//
// # Custom Base Transport
//
// Configure a custom base transport for token requests (e.g., for proxies or tests):
//
//	ex, err := tokensource.NewExchanger(cfg, tokensource.WithTransport(customTransport))
package tokensource
