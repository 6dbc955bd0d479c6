package cascade

// Version of the cascade service.
const Version = "0.9.1"
