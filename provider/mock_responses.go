package provider

var mockErrorResponses = []string{
	`{"status":"success","result":null}`,
	`{"status":"error","error":{"error_code":901,"error_message":"Recognition failed: authorization failed: no api_token passed and the limit was reached. Get an api_token from dashboard.audd.io."},"request_params":{},"request_api_method":"recognize","request_http_method":"POST","see api documentation":"https://docs.audd.io","contact us":"api@audd.io"}`,
	`{"status":"error","error":{"error_code":900,"error_message":"Recognition failed: authorization failed: wrong api_token. Please check if your account is activated on dashboard.audd.io and has either a trial or an active subscription."},"request_params":{},"request_api_method":"recognize","request_http_method":"POST","see api documentation":"https://docs.audd.io","contact us":"api@audd.io"}`,
	`{"status":"error","error":{"error_code":300,"error_message":"Recognition failed: a problem with fingerprints creating. Keep in mind that you should send only audio files or links to audio files. We support some of the Instagram, Twitter, TikTok and Facebook videos, and also parse html for OpenGraph and JSON-LD media and <audio>/<video> tags, but it's always better to send a 10-20 seconds-long audio file. For audio streams, see https://docs.audd.io/streams/"},"request_params":{},"request_api_method":"recognize","request_http_method":"POST","see api documentation":"https://docs.audd.io","contact us":"api@audd.io"}`,
}

var mockValidResponses = []string{
	`{"status":"success","result":{"artist":"The London Symphony Orchestra","title":"Eine Kleine Nachtmusik","album":"An Hour Of The London Symphony Orchestra","release_date":"2014-04-22","label":"Glory Days Music","timecode":"00:24","song_link":"https://lis.tn/EineKleineNachtmusik"}}`,
	`{"status":"success","result":{"artist":"Public","title":"Make You Mine","album":"Let's Make It","release_date":"2014-10-07","label":"PUBLIC","timecode":"00:43","song_link":"https://lis.tn/FUYgUV"}}`,
	`{"status":"success","result":{"artist":"5 Seconds Of Summer","title":"Amnesia","album":"Amnesia","release_date":"2014-06-24","label":"Universal Music","timecode":"01:02","song_link":"https://lis.tn/WSKAzD","spotify":{"album":{"name":"5 Seconds Of Summer","album_type":"album","id":"2LkWHNNHgD6BRNeZI2SL1L","images":[{"height":640,"width":640,"url":"https://i.scdn.co/image/ab67616d0000b27393432e914046a003229378da"},{"height":300,"width":300,"url":"https://i.scdn.co/image/ab67616d00001e0293432e914046a003229378da"}],"external_urls":{"spotify":"https://open.spotify.com/album/2LkWHNNHgD6BRNeZI2SL1L"},"release_date":"2014-06-27"},"disc_number":1,"duration_ms":237247,"external_urls":{"spotify":"https://open.spotify.com/track/1JCCdiru7fhstOIF4N7WJC"},"id":"1JCCdiru7fhstOIF4N7WJC","name":"Amnesia","preview_url":"","track_number":12,"uri":"spotify:track:1JCCdiru7fhstOIF4N7WJC"}}}`,
	`{"status":"success","result":{"artist":"Alessia Cara","title":"Scars To Your Beautiful","album":"Know-It-All","release_date":"2015-11-13","label":"EP Entertainment, LLC / Def Jam","timecode":"00:28","song_link":"https://lis.tn/ScarsToYourBeautiful","spotify":{"album":{"name":"Know-It-All (Deluxe)","album_type":"album","id":"3rDbA12I5duZnlwakqDdZa","images":[{"height":640,"width":640,"url":"https://i.scdn.co/image/ab67616d0000b273e3ae597159d6c2541c4ee61b"}],"external_urls":{"spotify":"https://open.spotify.com/album/3rDbA12I5duZnlwakqDdZa"},"release_date":"2015-11-13"},"disc_number":1,"duration_ms":230226,"external_urls":{"spotify":"https://open.spotify.com/track/0prNGof3XqfTvNDxHonvdK"},"id":"0prNGof3XqfTvNDxHonvdK","name":"Scars To Your Beautiful","preview_url":"","track_number":10,"uri":"spotify:track:0prNGof3XqfTvNDxHonvdK"}}}`,
	`{"status":"success","result":{"artist":"Daniel Boone","title":"Beautiful Sunday","album":"Pop Legend Vol.1","release_date":"2010-01-15","label":"Open Records","timecode":"00:33","song_link":"https://lis.tn/YTuccJ","spotify":{"album":{"name":"Cocktail Super Pop","album_type":"compilation","id":"1ZsLymIsvlHEnGtQFen5xd","images":[{"height":640,"width":640,"url":"https://i.scdn.co/image/ab67616d0000b273db8f64a52a4ec4cde9a9528a"}],"external_urls":{"spotify":"https://open.spotify.com/album/1ZsLymIsvlHEnGtQFen5xd"},"release_date":"2013-01-18"},"disc_number":1,"duration_ms":176520,"external_urls":{"spotify":"https://open.spotify.com/track/6o3AMOtlfI6APSUooekMtt"},"id":"6o3AMOtlfI6APSUooekMtt","name":"Beautiful Sunday","preview_url":"https://p.scdn.co/mp3-preview/b2fa24732fe08a251b0c8d44774f37fd55378378?cid=e44e7b8278114c7db211c00ea273ac69","track_number":16,"uri":"spotify:track:6o3AMOtlfI6APSUooekMtt"}}}`,
}
