package format

// movieGenres is TMDB's fixed movie genre list (GET /genre/movie/list).
var movieGenres = map[int]string{
	28:    "Action",
	12:    "Adventure",
	16:    "Animation",
	35:    "Comedy",
	80:    "Crime",
	99:    "Documentary",
	18:    "Drama",
	10751: "Family",
	14:    "Fantasy",
	36:    "History",
	27:    "Horror",
	10402: "Music",
	9648:  "Mystery",
	10749: "Romance",
	878:   "Science Fiction",
	10770: "TV Movie",
	53:    "Thriller",
	10752: "War",
	37:    "Western",
}

// GenreNames maps ids to names in the given order, skipping unknown ids.
func GenreNames(ids []int) []string {
	var out []string
	for _, id := range ids {
		if name, ok := movieGenres[id]; ok {
			out = append(out, name)
		}
	}
	return out
}
