package harvest

// StateNewMexico is the AQS state code swept by default.
const StateNewMexico = "35"

// NewMexicoCounties is the default county list.
func NewMexicoCounties() []County {
	return []County{
		{Code: "001", Name: "Bernalillo"},
		{Code: "003", Name: "Catron"},
		{Code: "005", Name: "Chaves"},
		{Code: "006", Name: "Cibola"},
		{Code: "007", Name: "Colfax"},
		{Code: "009", Name: "Curry"},
		{Code: "011", Name: "De Baca"},
		{Code: "013", Name: "Dona Ana"},
		{Code: "015", Name: "Eddy"},
		{Code: "017", Name: "Grant"},
		{Code: "019", Name: "Guadalupe"},
		{Code: "021", Name: "Harding"},
		{Code: "023", Name: "Hidalgo"},
		{Code: "025", Name: "Lea"},
		{Code: "027", Name: "Lincoln"},
		{Code: "028", Name: "Los Alamos"},
		{Code: "029", Name: "Luna"},
		{Code: "031", Name: "McKinley"},
		{Code: "033", Name: "Mora"},
		{Code: "035", Name: "Otero"},
		{Code: "037", Name: "Quay"},
		{Code: "039", Name: "Rio Arriba"},
		{Code: "041", Name: "Roosevelt"},
		{Code: "043", Name: "Sandoval"},
		{Code: "045", Name: "San Juan"},
	}
}
